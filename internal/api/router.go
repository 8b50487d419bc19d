package api

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/api/middleware"
	"github.com/coursebench/workspaced/internal/orchestrator"
	"github.com/coursebench/workspaced/internal/store"
)

type API struct {
	pool  *pgxpool.Pool
	store *store.Store
	orch  *orchestrator.Orchestrator
	log   *zap.Logger
}

func NewAPI(pool *pgxpool.Pool, st *store.Store, orch *orchestrator.Orchestrator, log *zap.Logger) *API {
	return &API{
		pool:  pool,
		store: st,
		orch:  orch,
		log:   log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger)
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Workspaces
		r.Get("/workspaces", a.ListWorkspaces)
		r.Post("/workspaces", a.CreateWorkspace)
		r.Get("/workspaces/{workspace_id}", a.GetWorkspace)
		r.Post("/workspaces/{workspace_id}/startup", a.StartupWorkspace)
		r.Post("/workspaces/{workspace_id}/heartbeat", a.HeartbeatWorkspace)
		r.Put("/workspaces/{workspace_id}/state", a.ReportWorkspaceState)
		r.Post("/workspaces/{workspace_id}/reset", a.ResetWorkspace)
		r.Get("/workspaces/{workspace_id}/graded-files", a.GetGradedFiles)

		// Host fleet
		r.Get("/hosts", a.ListHosts)
		r.Put("/hosts/{host_id}", a.RegisterHost)

		// Graded-file catalog
		r.Put("/courses/{course_id}/questions/{question_id}/graded-files", a.SetGradedFileList)
	})

	return r
}
