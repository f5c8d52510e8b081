package routegroups

import (
	"github.com/go-chi/chi/v5"

	"driveshare/api/handlers"
)

func RegisterDocuments(apiRouter chi.Router, g Guards, documents *handlers.DocumentsHandler) {
	apiRouter.Route("/documents", func(documentsRouter chi.Router) {
		documentsRouter.MethodFunc("GET", "/", g.Session(documents.List))
		documentsRouter.MethodFunc("POST", "/", g.Session(documents.Create))
		documentsRouter.MethodFunc("POST", "/external", g.SessionLimited(documents.CreateExternal))
		documentsRouter.MethodFunc("POST", "/service", g.Session(documents.CreateForService))
		documentsRouter.MethodFunc("GET", "/service-folder/{name}", g.Session(documents.ListServiceFolder))
		documentsRouter.MethodFunc("GET", "/{id}", g.OptionalSession(documents.Get))
		documentsRouter.MethodFunc("PUT", "/{id}", g.Session(documents.Rename))
		documentsRouter.MethodFunc("DELETE", "/{id}", g.Session(documents.Delete))
		documentsRouter.MethodFunc("POST", "/{id}/sign", g.Session(documents.Sign))
		documentsRouter.MethodFunc("GET", "/{id}/controls", g.Session(documents.ListControls))
		documentsRouter.MethodFunc("POST", "/{id}/controls", g.Session(documents.SaveControl))
		documentsRouter.MethodFunc("PUT", "/{id}/controls/{control_id}", g.Session(documents.SaveControl))
		documentsRouter.MethodFunc("DELETE", "/{id}/controls/{control_id}", g.Session(documents.DeleteControl))
	})
}

func RegisterFolders(apiRouter chi.Router, g Guards, folders *handlers.FoldersHandler) {
	apiRouter.Route("/folders", func(foldersRouter chi.Router) {
		foldersRouter.MethodFunc("GET", "/", g.Session(folders.List))
		foldersRouter.MethodFunc("POST", "/", g.Session(folders.Create))
		foldersRouter.MethodFunc("POST", "/service", g.Session(folders.ProcessServiceFolder))
		foldersRouter.MethodFunc("GET", "/service/{service_key}", g.Session(folders.ListServiceFolders))
		foldersRouter.MethodFunc("GET", "/{id}", g.Session(folders.Get))
		foldersRouter.MethodFunc("PUT", "/{id}", g.Session(folders.Rename))
		foldersRouter.MethodFunc("DELETE", "/{id}", g.Session(folders.Delete))
		foldersRouter.MethodFunc("GET", "/{id}/ancestors", g.Session(folders.Ancestors))
		foldersRouter.MethodFunc("GET", "/{id}/children", g.Session(folders.Children))
		foldersRouter.MethodFunc("GET", "/{id}/documents", g.Session(folders.Documents))
	})
}

func RegisterShare(apiRouter chi.Router, g Guards, shares *handlers.ShareHandler) {
	apiRouter.Route("/share", func(shareRouter chi.Router) {
		shareRouter.MethodFunc("GET", "/documents", g.Session(shares.SharedDocuments))
		shareRouter.MethodFunc("GET", "/folders", g.Session(shares.SharedFolders))
		shareRouter.MethodFunc("GET", "/users", g.Session(shares.SearchUsers))
		shareRouter.MethodFunc("POST", "/claim", g.Session(shares.Claim))
		shareRouter.MethodFunc("GET", "/{kind}/{id}", g.Session(shares.FindByItem))
		shareRouter.MethodFunc("PUT", "/{kind}/{id}", g.Session(shares.Save))
	})
}
