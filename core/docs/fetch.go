package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"driveshare/core/errs"
)

// fetchExternal downloads url for import. Only images and PDFs are accepted.
func (s *Service) fetchExternal(ctx context.Context, url string) (Upload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", errs.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Upload{}, fmt.Errorf("%w: %s responded %d", errs.ErrUpstreamFetch, url, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !acceptedExternal(contentType) {
		return Upload{}, fmt.Errorf("%w: Unsupported mime type %q", errs.ErrUnsupportedFormat, contentType)
	}
	limit := s.cfg.Docs.FetchMaxBytes
	if limit <= 0 {
		limit = 100 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Upload{}, fmt.Errorf("%w: read body: %v", errs.ErrUpstreamFetch, err)
	}
	if int64(len(data)) > limit {
		return Upload{}, fmt.Errorf("%w: payload size exceeded", errs.ErrUpstreamFetch)
	}
	return Upload{Name: path.Base(resp.Request.URL.Path), ContentType: contentType, Data: data}, nil
}
