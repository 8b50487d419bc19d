package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
)

type RegisterHostRequest struct {
	Hostname string `json:"hostname"`
	State    string `json:"state"`
}

type SetGradedFileListRequest struct {
	Files []string `json:"files"`
}

// ListHosts returns the host fleet with current load.
func (a *API) ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := a.store.ListHosts(r.Context())
	if err != nil {
		a.log.Error("list hosts failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list hosts"))
		return
	}
	if hosts == nil {
		hosts = []core.Host{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"hosts": hosts})
}

// RegisterHost adds a host to the fleet or refreshes its hostname and
// state. Load counts are never set this way.
func (a *API) RegisterHost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostID := chi.URLParam(r, "host_id")

	var req RegisterHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.Hostname == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "hostname is required"))
		return
	}
	state := core.HostState(req.State)
	if req.State == "" {
		state = core.HostReady
	}

	if err := a.store.UpsertHost(ctx, core.Host{ID: hostID, Hostname: req.Hostname, State: state}); err != nil {
		a.log.Error("register host failed", zap.String("host_id", hostID), zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to register host"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetGradedFileList replaces a question's graded-file catalog entry.
func (a *API) SetGradedFileList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courseID := chi.URLParam(r, "course_id")
	questionID := chi.URLParam(r, "question_id")

	var req SetGradedFileListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}
	if req.Files == nil {
		req.Files = []string{}
	}

	if err := a.store.SetGradedFileList(ctx, courseID, questionID, req.Files); err != nil {
		a.log.Error("set graded file list failed",
			zap.String("course_id", courseID), zap.String("question_id", questionID), zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to update catalog"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
