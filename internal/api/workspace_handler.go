package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/store"
)

type CreateWorkspaceRequest struct {
	ID              string `json:"id"`
	CourseID        string `json:"course_id"`
	QuestionID      string `json:"question_id"`
	HomedirLocation string `json:"homedir_location"`
}

type ResetWorkspaceRequest struct {
	HomedirLocation string `json:"homedir_location"`
}

type ReportStateRequest struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// startupTimeout bounds a detached startup, covering materialization,
// the assignment retry loop and the host round trip. reportTimeout
// bounds the follow-up failure report, which must run on its own
// context because the startup's may already be expired.
const (
	startupTimeout = 15 * time.Minute
	reportTimeout  = 30 * time.Second
)

func validLocation(s string) (core.HomedirLocation, bool) {
	switch core.HomedirLocation(s) {
	case core.LocationObjectStore, core.LocationNetworkedFilesystem:
		return core.HomedirLocation(s), true
	}
	return "", false
}

// ListWorkspaces lists workspaces, optionally filtered by course_id.
func (a *API) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workspaces, err := a.store.ListWorkspaces(ctx, r.URL.Query().Get("course_id"))
	if err != nil {
		a.log.Error("list workspaces failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list workspaces"))
		return
	}
	if workspaces == nil {
		workspaces = []core.Workspace{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": workspaces,
	})
}

// GetWorkspace gets a single workspace by id.
func (a *API) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")

	ws, err := a.store.GetWorkspace(ctx, id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, ws)
}

// CreateWorkspace records a new workspace in the uninitialized state.
// Storage is not touched until the first startup.
func (a *API) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.CourseID == "" || req.QuestionID == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "course_id and question_id are required"))
		return
	}
	if req.HomedirLocation == "" {
		req.HomedirLocation = string(core.LocationObjectStore)
	}
	location, ok := validLocation(req.HomedirLocation)
	if !ok {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "unknown homedir_location"))
		return
	}
	if req.ID == "" {
		req.ID = core.NewID()
	}

	ws, err := a.store.CreateWorkspace(ctx, store.CreateWorkspaceParams{
		ID:              req.ID,
		CourseID:        req.CourseID,
		QuestionID:      req.QuestionID,
		HomedirLocation: location,
	})
	if err != nil {
		if core.IsCode(err, core.ErrConflict) {
			WriteAppError(w, err)
			return
		}
		a.log.Error("create workspace failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create workspace"))
		return
	}

	WriteJSON(w, http.StatusCreated, ws)
}

// StartupWorkspace kicks off the launch sequence and returns 202. The
// sequence continues detached from the request; progress lands on the
// workspace's state and message, which clients poll or subscribe to.
func (a *API) StartupWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")

	if _, err := a.store.GetWorkspace(ctx, id); err != nil {
		WriteAppError(w, err)
		return
	}

	go runDetachedStartup(a.orch, a.log, id)

	WriteAccepted(w, "/v1/workspaces/"+id)
}

// launcher is the slice of the orchestrator a detached startup needs.
type launcher interface {
	Startup(ctx context.Context, id string) error
	ReportStartupFailure(ctx context.Context, id string, cause error)
}

// runDetachedStartup drives the launch sequence on its own timeout and
// surfaces any failure on the workspace record. The report runs on a
// fresh context: when the failure is the startup deadline itself, the
// expired context would make every write inside the report fail too and
// leave the workspace stuck in launching.
func runDetachedStartup(orch launcher, log *zap.Logger, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := orch.Startup(ctx, id); err != nil {
		log.Error("startup failed", zap.String("workspace_id", id), zap.Error(err))
		reportCtx, reportCancel := context.WithTimeout(context.Background(), reportTimeout)
		defer reportCancel()
		orch.ReportStartupFailure(reportCtx, id, err)
	}
}

// HeartbeatWorkspace records container liveness.
func (a *API) HeartbeatWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")

	if err := a.orch.Heartbeat(ctx, id); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReportWorkspaceState lets host agents report container state changes.
// States are stored verbatim; a workspace leaving the running lifecycle
// has its host capacity slot returned.
func (a *API) ReportWorkspaceState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")

	var req ReportStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.State == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "state is required"))
		return
	}

	state := core.WorkspaceState(req.State)
	if err := a.orch.UpdateState(ctx, id, state, req.Message); err != nil {
		WriteAppError(w, err)
		return
	}
	if state != core.StateRunning && state != core.StateLaunching {
		if err := a.store.ReleaseWorkspaceHost(ctx, id); err != nil {
			a.log.Error("release host failed", zap.String("workspace_id", id), zap.Error(err))
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetWorkspace starts a fresh generation, optionally moving it to a
// different storage backend. Old contents stay under their versioned
// names.
func (a *API) ResetWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")

	var location core.HomedirLocation
	if r.ContentLength > 0 {
		var req ResetWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
			return
		}
		if req.HomedirLocation != "" {
			loc, ok := validLocation(req.HomedirLocation)
			if !ok {
				WriteError(w, core.NewAppError(core.ErrBadRequest, "unknown homedir_location"))
				return
			}
			location = loc
		}
	}

	ws, err := a.store.ResetWorkspace(ctx, id, location)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, ws)
}

// GetGradedFiles collects the workspace's submission archive and streams
// it back as an attachment. An uninitialized workspace has nothing to
// collect and yields 204.
func (a *API) GetGradedFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workspace_id")

	path, err := a.orch.CollectGradedFiles(ctx, id)
	if err != nil {
		a.log.Error("graded file collection failed", zap.String("workspace_id", id), zap.Error(err))
		WriteAppError(w, err)
		return
	}
	if path == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
