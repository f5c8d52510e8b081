package docs

import (
	"strings"
	"time"

	"driveshare/core/store"
)

// Caller is the resolved identity of a request. User is nil for anonymous
// shareable-link access.
type Caller struct {
	User         *store.User
	Organization string
}

func (c Caller) userID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// Upload is a file received from a client or fetched from a URL.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type ListRequest struct {
	ServiceID    string
	FolderID     string
	KeyID        string
	SignedURLTTL time.Duration
}

type CreateRequest struct {
	Service       *store.ServiceRef
	FolderID      string
	ServiceFolder string
	Organization  string
	IsPublic      bool
	SignedURLTTL  time.Duration
}

// InternalRequest is an upload made by another service on behalf of an
// organization.
type InternalRequest struct {
	ServiceID    string
	Organization string
	IsPublic     bool
	SignedURLTTL time.Duration
}

const (
	contentTypePDF   = "application/pdf"
	signedNamePrefix = "Signed_"
)

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// acceptedExternal reports whether an external fetch may be stored.
func acceptedExternal(contentType string) bool {
	return strings.Contains(contentType, "image/") || strings.Contains(contentType, contentTypePDF)
}
