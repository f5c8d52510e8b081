package routegroups

import "net/http"

type Guards struct {
	WithSession         func(http.HandlerFunc) http.HandlerFunc
	WithOptionalSession func(http.HandlerFunc) http.HandlerFunc
	LimitImports        func(http.HandlerFunc) http.HandlerFunc
}

// Session requires an authenticated caller.
func (g Guards) Session(h http.HandlerFunc) http.HandlerFunc {
	return g.WithSession(h)
}

// OptionalSession admits anonymous callers; handlers fall back to
// shareable-link access for them.
func (g Guards) OptionalSession(h http.HandlerFunc) http.HandlerFunc {
	return g.WithOptionalSession(h)
}

// SessionLimited requires a caller and applies the import rate limit.
func (g Guards) SessionLimited(h http.HandlerFunc) http.HandlerFunc {
	if g.LimitImports == nil {
		return g.WithSession(h)
	}
	return g.WithSession(g.LimitImports(h))
}
