package pdfsign

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"driveshare/config"
	"driveshare/core/utils"
)

var ErrNoKeystore = errors.New("signing keystore is not configured")

// Request describes one signing run.
type Request struct {
	DocumentID string
	Source     []byte
	Marks      []Mark
	FullName   string
}

// Engine signs documents inside a per-run build directory.
type Engine struct {
	cfg      config.SigningConfig
	keystore *Keystore
	logger   *utils.Logger
	now      func() time.Time
}

func NewEngine(cfg config.SigningConfig, ks *Keystore, logger *utils.Logger) *Engine {
	return &Engine{cfg: cfg, keystore: ks, logger: logger, now: time.Now}
}

func (e *Engine) layout() Layout {
	l := Layout{ImageWidth: e.cfg.ImageWidth, ImageHeight: e.cfg.ImageHeight, FontSize: e.cfg.FontSize}
	if l.ImageWidth <= 0 {
		l.ImageWidth = 110
	}
	if l.ImageHeight <= 0 {
		l.ImageHeight = 55
	}
	if l.FontSize <= 0 {
		l.FontSize = 12
	}
	return l
}

func (e *Engine) placeholderBytes() int {
	if e.cfg.PlaceholderBytes <= 0 {
		return 8192
	}
	return e.cfg.PlaceholderBytes
}

// Sign draws the marks onto req.Source and returns the signed document.
// The build directory is removed whether or not signing succeeds.
func (e *Engine) Sign(req Request) ([]byte, error) {
	if e.keystore == nil {
		return nil, ErrNoKeystore
	}
	now := e.now()
	buildDir := filepath.Join(e.cfg.BuildDir, fmt.Sprintf("%s_%d", req.DocumentID, now.UnixMilli()))
	if err := os.MkdirAll(buildDir, 0o700); err != nil {
		return nil, fmt.Errorf("create build dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(buildDir); err != nil {
			e.logger.Errorf("remove build dir %s: %v", buildDir, err)
		}
	}()

	if err := os.WriteFile(filepath.Join(buildDir, "original.pdf"), req.Source, 0o600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}
	prepared, err := preparePlaceholder(req.Source, placeholderRequest{
		DocumentID:       req.DocumentID,
		Marks:            req.Marks,
		FullName:         req.FullName,
		SignedAt:         now,
		Reason:           e.cfg.Reason,
		PlaceholderBytes: e.placeholderBytes(),
		Layout:           e.layout(),
	})
	if err != nil {
		return nil, err
	}
	modified := filepath.Join(buildDir, "modified.pdf")
	if err := os.WriteFile(modified, prepared, 0o600); err != nil {
		return nil, fmt.Errorf("write prepared document: %w", err)
	}
	prepared, err = os.ReadFile(modified)
	if err != nil {
		return nil, fmt.Errorf("read prepared document: %w", err)
	}
	signed, err := embedSignature(prepared, e.keystore.SignDetached)
	if err != nil {
		return nil, err
	}
	e.logger.Debugf("signed document %s: %d bytes", req.DocumentID, len(signed))
	return signed, nil
}
