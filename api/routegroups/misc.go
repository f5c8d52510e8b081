package routegroups

import (
	"github.com/go-chi/chi/v5"

	"driveshare/api/handlers"
)

func RegisterACL(apiRouter chi.Router, g Guards, acl *handlers.ACLHandler) {
	apiRouter.Route("/acl", func(aclRouter chi.Router) {
		aclRouter.MethodFunc("GET", "/", g.Session(acl.List))
		aclRouter.MethodFunc("POST", "/", g.Session(acl.Create))
		aclRouter.MethodFunc("GET", "/access", g.Session(acl.Access))
		aclRouter.MethodFunc("GET", "/keys/{service}", g.Session(acl.ServiceKeys))
		aclRouter.MethodFunc("PUT", "/{id}", g.Session(acl.Update))
		aclRouter.MethodFunc("DELETE", "/{id}", g.Session(acl.Delete))
	})
}

func RegisterSignatures(apiRouter chi.Router, g Guards, signatures *handlers.SignaturesHandler) {
	apiRouter.Route("/signatures", func(signaturesRouter chi.Router) {
		signaturesRouter.MethodFunc("GET", "/", g.Session(signatures.List))
		signaturesRouter.MethodFunc("POST", "/", g.Session(signatures.Create))
		signaturesRouter.MethodFunc("GET", "/{id}/image", g.Session(signatures.Image))
		signaturesRouter.MethodFunc("DELETE", "/{id}", g.Session(signatures.Delete))
	})
}

func RegisterSettings(apiRouter chi.Router, g Guards, settings *handlers.SettingsHandler) {
	apiRouter.MethodFunc("GET", "/settings", g.Session(settings.Get))
	apiRouter.MethodFunc("PUT", "/settings", g.Session(settings.Update))
}
