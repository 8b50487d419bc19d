package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/hostctl"
	"github.com/coursebench/workspaced/internal/observability"
)

// CollectGradedFiles returns the local path of a zip holding the
// workspace's graded files, or "" when the workspace has never been
// initialized. A running workspace is asked over the control channel
// first since the live container has the freshest files, but that path
// is best effort only: any failure there, protocol violations included,
// falls back to the storage backend, which remains authoritative for
// whatever was last synced.
func (o *Orchestrator) CollectGradedFiles(ctx context.Context, workspaceID string) (string, error) {
	ws, err := o.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	log := observability.WorkspaceLogger(o.log, ws.ID, ws.Version)

	if ws.State == core.StateUninitialized {
		log.Info("workspace never initialized, no graded files")
		return "", nil
	}

	if ws.State == core.StateRunning {
		res, err := o.control.Send(ctx, workspaceID, hostctl.ActionGetGradedFiles, nil)
		if err == nil && res != nil && res.FilePath != "" {
			return res.FilePath, nil
		}
		observability.GradedFallbackTotal.Inc()
		if err != nil {
			log.Warn("control channel export failed, falling back to backend", zap.Error(err))
		} else {
			log.Info("control channel export unavailable, falling back to backend")
		}
	}

	list, err := o.store.SelectWorkspaceGradedFileList(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("load graded file list: %w", err)
	}
	backend, err := o.backends.ForLocation(ws.HomedirLocation)
	if err != nil {
		return "", err
	}
	return backend.FetchGradedFiles(ctx, ws, list.Files)
}
