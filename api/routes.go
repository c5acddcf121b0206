// omp-launcher/api/routes.go
package api

import (
	"context"
	"net/http"
	"sync"

	"omp-launcher/config"
	"omp-launcher/provision"
	"omp-launcher/updateinfo"
)

// Server holds what the handlers need.
type Server struct {
	store     *config.Store
	prov      *provision.Provisioner
	session   *updateinfo.Session
	hub       *Hub
	version   string
	selectDir func() (string, error)
	runCtx    context.Context

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

type Deps struct {
	Store       *config.Store
	Provisioner *provision.Provisioner
	Session     *updateinfo.Session
	Hub         *Hub
	Version     string
	// SelectDirectory opens a native folder picker; nil disables the endpoint.
	SelectDirectory func() (string, error)
	// RunContext bounds provisioning runs started over HTTP.
	RunContext context.Context
}

func NewServer(d Deps) *Server {
	runCtx := d.RunContext
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &Server{
		store:     d.Store,
		prov:      d.Provisioner,
		session:   d.Session,
		hub:       d.Hub,
		version:   d.Version,
		selectDir: d.SelectDirectory,
		runCtx:    runCtx,
		shutdown:  make(chan struct{}),
	}
}

// RegisterRoutes registers every API route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// WebSocket
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	mux.HandleFunc("GET /ws/events", s.HandleEventsWebSocket)

	// Provisioning
	mux.HandleFunc("GET /api/status", s.HandleStatus)
	mux.HandleFunc("POST /api/provision/start", s.HandleStartProvisioning)
	mux.HandleFunc("POST /api/provision/cancel", s.HandleCancelProvisioning)

	// Settings
	mux.HandleFunc("GET /api/settings", s.HandleGetSettings)
	mux.HandleFunc("POST /api/settings/{key}", s.HandleSetSetting)
	mux.HandleFunc("POST /api/select-game-path", s.HandleSelectGamePath)

	// Launcher update info
	mux.HandleFunc("GET /api/update-info", s.HandleUpdateInfo)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}
