package signatures

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"

	"driveshare/config"
	"driveshare/core/blob"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

// Service stores user signature images compressed and encrypted at rest.
type Service struct {
	cfg       *config.AppConfig
	store     store.SignaturesStore
	controls  store.ControlsStore
	blobs     blob.Store
	encryptor *utils.Encryptor
	logger    *utils.Logger
}

func NewService(cfg *config.AppConfig, ss store.SignaturesStore, controls store.ControlsStore, blobs blob.Store, logger *utils.Logger) (*Service, error) {
	enc, err := utils.NewEncryptorFromString(cfg.Signatures.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("signature encryptor: %w", err)
	}
	return &Service{cfg: cfg, store: ss, controls: controls, blobs: blobs, encryptor: enc, logger: logger}, nil
}

func storeKey(userID, id, name string) string {
	return fmt.Sprintf("APP/USERS/%s/signatures/%s%s", userID, id, strings.ToLower(filepath.Ext(name)))
}

func (s *Service) Create(ctx context.Context, userID, name, contentType string, data []byte) (*store.Signature, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty signature image", errs.ErrValidation)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: signature must be an image, got %s", errs.ErrUnsupportedFormat, contentType)
	}
	sealed, err := s.encryptor.SealCompressed(data)
	if err != nil {
		return nil, fmt.Errorf("seal signature: %w", err)
	}
	sig := &store.Signature{UserID: userID, Name: name, ContentType: contentType}
	sig.ID = uuid.Must(uuid.NewV4()).String()
	sig.StoreKey = storeKey(userID, sig.ID, name)
	res, err := s.blobs.Upload(ctx, sig.StoreKey, "application/octet-stream", sealed)
	if err != nil {
		return nil, fmt.Errorf("upload signature: %w", err)
	}
	sig.Size = res.Size
	if _, err := s.store.Create(ctx, sig); err != nil {
		if rmErr := s.blobs.Remove(ctx, sig.StoreKey); rmErr != nil {
			s.logger.Errorf("signature rollback %s: %v", sig.StoreKey, rmErr)
		}
		return nil, err
	}
	return sig, nil
}

func (s *Service) FindByUser(ctx context.Context, userID string) ([]store.Signature, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) FindByID(ctx context.Context, id string) (*store.Signature, error) {
	sig, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, fmt.Errorf("signature %s: %w", id, errs.ErrNotFound)
	}
	return sig, nil
}

// Open returns the decrypted image bytes.
func (s *Service) Open(ctx context.Context, sig *store.Signature) ([]byte, error) {
	sealed, err := s.blobs.Download(ctx, sig.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("download signature %s: %w", sig.ID, err)
	}
	plain, err := s.encryptor.OpenCompressed(sealed)
	if err != nil {
		return nil, fmt.Errorf("open signature %s: %w", sig.ID, err)
	}
	return plain, nil
}

// Remove deletes a signature the user owns. Signatures placed on a document
// cannot be removed.
func (s *Service) Remove(ctx context.Context, userID, id string) error {
	sig, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if sig.UserID != userID {
		return errs.ErrAccessDenied
	}
	n, err := s.controls.CountBySignature(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: signature is used by %d document controls", errs.ErrConflict, n)
	}
	if err := s.blobs.Remove(ctx, sig.StoreKey); err != nil {
		s.logger.Errorf("remove signature blob %s: %v", sig.StoreKey, err)
	}
	return s.store.Delete(ctx, id)
}
