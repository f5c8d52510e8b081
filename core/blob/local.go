package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStore keeps blobs on the filesystem. Signed URLs point at Handler.
type LocalStore struct {
	dir    string
	secret []byte
	prefix string
	now    func() time.Time
}

func NewLocalStore(dir, secret, prefix string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("local storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage dir: %w", err)
	}
	return &LocalStore{dir: dir, secret: []byte(secret), prefix: strings.TrimRight(prefix, "/"), now: time.Now}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Upload(_ context.Context, key, _ string, data []byte) (UploadResult, error) {
	p, err := s.path(key)
	if err != nil {
		return UploadResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return UploadResult{}, err
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Size: int64(len(data))}, nil
}

func (s *LocalStore) Download(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.ReadStream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *LocalStore) ReadStream(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) RemoveMany(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalStore) SignedURL(_ context.Context, key, filename string, ttl time.Duration, forceDownload bool) (string, error) {
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	if filename != "" {
		q.Set("filename", filename)
	}
	if forceDownload {
		q.Set("download", "1")
	}
	q.Set("sig", s.sign(key, expires))
	return s.prefix + "/" + strings.TrimLeft(key, "/") + "?" + q.Encode(), nil
}

func (s *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.TrimLeft(key, "/")))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Handler serves blobs addressed by URLs from SignedURL.
func (s *LocalStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, s.prefix+"/")
		expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
		if err != nil || s.now().Unix() > expires {
			http.Error(w, "expired", http.StatusForbidden)
			return
		}
		if !hmac.Equal([]byte(s.sign(key, expires)), []byte(r.URL.Query().Get("sig"))) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		rc, err := s.ReadStream(r.Context(), key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		disposition := "inline"
		if r.URL.Query().Get("download") == "1" {
			disposition = "attachment"
		}
		if name := r.URL.Query().Get("filename"); name != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
		}
		_, _ = io.Copy(w, rc)
	})
}
