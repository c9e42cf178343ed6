// Package server exposes the compiler as a connect service speaking CBOR.
package server

import (
	"net/http"
	"runtime"

	"github.com/tliron/commonlog"

	"github.com/chazu/jsbc/store"
	"github.com/chazu/jsbc/vm"
)

var log = commonlog.GetLogger("jsbc.server")

// JSBCServer is the compile server. It serves the CompileService to
// connect clients over HTTP/1.1.
type JSBCServer struct {
	pool    *WorkerPool
	index   *vm.ContentStore
	service *CompileService
	mux     *http.ServeMux
}

// ServerOption configures a JSBCServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	cache      *store.Store
	workers    int
	arenaLimit int
}

// WithCache enables the persistent script cache. The server does not
// close it.
func WithCache(s *store.Store) ServerOption {
	return func(c *serverConfig) { c.cache = s }
}

// WithWorkers sets the number of concurrent compilations. The default is
// GOMAXPROCS.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) { c.workers = n }
}

// WithArenaLimit caps the arena bytes one compilation may use; zero means
// no cap.
func WithArenaLimit(n int) ServerOption {
	return func(c *serverConfig) { c.arenaLimit = n }
}

// New creates a JSBCServer.
func New(opts ...ServerOption) *JSBCServer {
	cfg := &serverConfig{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool := NewWorkerPool(cfg.workers)
	index := vm.NewContentStore()
	s := &JSBCServer{
		pool:    pool,
		index:   index,
		service: NewCompileService(pool, cfg.cache, index, cfg.arenaLimit),
		mux:     http.NewServeMux(),
	}

	path, handler := NewCompileServiceHandler(s.service)
	s.mux.Handle(path, handler)
	return s
}

// Handler returns the server's HTTP handler.
func (s *JSBCServer) Handler() http.Handler {
	return s.mux
}

// Index returns the content-addressed index of every script the server
// has compiled or served from cache.
func (s *JSBCServer) Index() *vm.ContentStore {
	return s.index
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *JSBCServer) ListenAndServe(addr string) error {
	log.Noticef("jsbc compile server listening on %s", addr)
	log.Noticef("  POST http://%s%s (application/cbor)", addr, CompileServiceCompileProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the worker pool.
func (s *JSBCServer) Stop() {
	s.pool.Stop()
}
