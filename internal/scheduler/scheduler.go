// Package scheduler assigns workspaces to hosts with spare capacity.
// The race-prone part is a single atomic claim in the store; this
// package only decides what "no capacity" and "disabled" mean to
// callers.
package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/observability"
)

// Store is the one primitive the scheduler needs: given a load
// threshold, atomically pick any host below it, bump its load and attach
// it to the workspace, or report "" when no host qualifies.
type Store interface {
	AssignHostWithCapacity(ctx context.Context, workspaceID string, capacityThreshold int) (string, error)
}

type Scheduler struct {
	store     Store
	threshold int
	enabled   bool
	log       *zap.Logger
}

func New(store Store, capacityThreshold int, enabled bool, log *zap.Logger) *Scheduler {
	return &Scheduler{store: store, threshold: capacityThreshold, enabled: enabled, log: log}
}

// Enabled reports whether the workspace subsystem is administratively
// enabled. When it is not, Assign is a no-op and callers should treat
// the whole launch as nothing-to-do.
func (s *Scheduler) Enabled() bool {
	return s.enabled
}

// Assign attaches a host with spare capacity to the workspace and
// returns its id. "" with a nil error means no host currently has
// capacity; that is a signal to retry later, not a failure.
func (s *Scheduler) Assign(ctx context.Context, workspaceID string) (string, error) {
	if !s.enabled {
		return "", nil
	}
	hostID, err := s.store.AssignHostWithCapacity(ctx, workspaceID, s.threshold)
	if err != nil {
		observability.HostAssignTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("assign host: %w", err)
	}
	if hostID == "" {
		observability.HostAssignTotal.WithLabelValues("none").Inc()
		s.log.Info("no host with spare capacity", zap.String("workspace_id", workspaceID))
		return "", nil
	}
	observability.HostAssignTotal.WithLabelValues("assigned").Inc()
	s.log.Info("host assigned",
		zap.String("workspace_id", workspaceID),
		zap.String("host_id", hostID))
	return hostID, nil
}
