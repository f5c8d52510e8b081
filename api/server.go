package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"driveshare/api/handlers"
	"driveshare/api/routegroups"
	"driveshare/config"
	"driveshare/core/acl"
	"driveshare/core/auth"
	"driveshare/core/blob"
	"driveshare/core/docs"
	"driveshare/core/folders"
	"driveshare/core/share"
	"driveshare/core/signatures"
	"driveshare/core/store"
	"driveshare/core/utils"
)

type Server struct {
	cfg           *config.AppConfig
	logger        *utils.Logger
	router        chi.Router
	sessions      *auth.SessionManager
	users         store.UsersStore
	acl           *acl.Engine
	docs          *docs.Service
	folders       *folders.Service
	shares        *share.Service
	signatures    *signatures.Service
	blobs         blob.Store
	importLimiter *requestLimiter
}

type Deps struct {
	Sessions   *auth.SessionManager
	Users      store.UsersStore
	ACL        *acl.Engine
	Docs       *docs.Service
	Folders    *folders.Service
	Shares     *share.Service
	Signatures *signatures.Service
	Blobs      blob.Store
}

func NewServer(cfg *config.AppConfig, deps Deps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		sessions:   deps.Sessions,
		users:      deps.Users,
		acl:        deps.ACL,
		docs:       deps.Docs,
		folders:    deps.Folders,
		shares:     deps.Shares,
		signatures: deps.Signatures,
		blobs:      deps.Blobs,
	}
	if cfg.Security.ImportPerMin > 0 {
		s.importLimiter = newLimiter(cfg.Security.ImportPerMin, time.Minute)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

type routeHandlers struct {
	documents  *handlers.DocumentsHandler
	folders    *handlers.FoldersHandler
	shares     *handlers.ShareHandler
	acl        *handlers.ACLHandler
	signatures *handlers.SignaturesHandler
	settings   *handlers.SettingsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		documents:  handlers.NewDocumentsHandler(s.cfg, s.docs, s.logger),
		folders:    handlers.NewFoldersHandler(s.folders, s.docs, s.logger),
		shares:     handlers.NewShareHandler(s.shares, s.docs, s.logger),
		acl:        handlers.NewACLHandler(s.acl, s.logger),
		signatures: handlers.NewSignaturesHandler(s.signatures, s.logger),
		settings:   handlers.NewSettingsHandler(s.docs, s.acl, s.logger),
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if served, ok := s.blobs.(interface{ Handler() http.Handler }); ok {
		r.Handle("/api/blobs/*", served.Handler())
	}
	h := s.newRouteHandlers()
	g := routegroups.Guards{
		WithSession:         s.withSession,
		WithOptionalSession: s.withOptionalSession,
		LimitImports:        s.limitImports,
	}
	r.Route("/api", func(apiRouter chi.Router) {
		routegroups.RegisterDocuments(apiRouter, g, h.documents)
		routegroups.RegisterFolders(apiRouter, g, h.folders)
		routegroups.RegisterShare(apiRouter, g, h.shares)
		routegroups.RegisterACL(apiRouter, g, h.acl)
		routegroups.RegisterSignatures(apiRouter, g, h.signatures)
		routegroups.RegisterSettings(apiRouter, g, h.settings)
	})
	return r
}
