// Package orchestrator drives the workspace lifecycle:
// uninitialized -> stopped -> launching -> running. All cross-cutting
// mutable state lives in the transactional store, never in process
// memory, so any number of orchestrator instances may run concurrently
// against the same workspaces.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/homedir"
	"github.com/coursebench/workspaced/internal/hostctl"
	"github.com/coursebench/workspaced/internal/notify"
)

// LockedWorkspace is the write surface available while holding a
// workspace's row lock. Writes land in the same transaction as the lock
// and become visible on commit.
type LockedWorkspace interface {
	SetState(ctx context.Context, state core.WorkspaceState, message string) error
}

// Store is the slice of the external transactional store this package
// needs. The pg implementation lives in internal/store.
type Store interface {
	GetWorkspace(ctx context.Context, id string) (core.Workspace, error)
	// WithLockedWorkspace acquires the workspace row lock, re-reads the
	// row and runs fn inside the transaction. fn must stay minimal: the
	// lock is meant to be held for a row read and at most one directory
	// move, not for bulk I/O.
	WithLockedWorkspace(ctx context.Context, id string, fn func(ctx context.Context, ws core.Workspace, tx LockedWorkspace) error) error
	UpdateWorkspaceState(ctx context.Context, id string, state core.WorkspaceState, message string) error
	UpdateWorkspaceMessage(ctx context.Context, id, message string) error
	SelectWorkspaceGradedFileList(ctx context.Context, id string) (core.GradedFileList, error)
	UpdateHeartbeat(ctx context.Context, id string) error
}

// Scheduler hands out hosts with spare capacity.
type Scheduler interface {
	Enabled() bool
	Assign(ctx context.Context, workspaceID string) (string, error)
}

// ControlChannel issues lifecycle commands to the assigned host.
type ControlChannel interface {
	Send(ctx context.Context, workspaceID, action string, options map[string]any) (*hostctl.Result, error)
}

// BackendResolver maps a homedir location to its storage backend.
type BackendResolver interface {
	ForLocation(loc core.HomedirLocation) (homedir.Backend, error)
}

type Config struct {
	// MaxLaunchAttempts bounds the host-assignment retry loop.
	MaxLaunchAttempts int
	// LaunchBackoff is the sleep between assignment attempts.
	LaunchBackoff time.Duration
}

type Orchestrator struct {
	store    Store
	backends BackendResolver
	sched    Scheduler
	control  ControlChannel
	notifier notify.Publisher
	cfg      Config
	log      *zap.Logger
}

func New(store Store, backends BackendResolver, sched Scheduler, control ControlChannel, notifier notify.Publisher, cfg Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		backends: backends,
		sched:    sched,
		control:  control,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// UpdateState persists the new state and message, then broadcasts the
// change. Persistence always happens first: an observer must never see a
// state the store has not committed.
func (o *Orchestrator) UpdateState(ctx context.Context, id string, state core.WorkspaceState, message string) error {
	if err := o.store.UpdateWorkspaceState(ctx, id, state, message); err != nil {
		return fmt.Errorf("update workspace state: %w", err)
	}
	o.publishState(id, state, message)
	return nil
}

// UpdateMessage persists a message change without touching state, then
// broadcasts it.
func (o *Orchestrator) UpdateMessage(ctx context.Context, id, message string) error {
	if err := o.store.UpdateWorkspaceMessage(ctx, id, message); err != nil {
		return fmt.Errorf("update workspace message: %w", err)
	}
	o.notifier.Publish(notify.WorkspaceRoom(id), notify.EventMessageChange, map[string]any{
		"message": message,
	})
	return nil
}

// Heartbeat refreshes the workspace's liveness timestamp. Reclamation of
// idle workspaces happens elsewhere; only the write path lives here.
func (o *Orchestrator) Heartbeat(ctx context.Context, id string) error {
	return o.store.UpdateHeartbeat(ctx, id)
}

// ReportStartupFailure surfaces a failed Startup to the user via the
// state machine. A workspace still uninitialized keeps its state (so a
// later startup re-materializes content) and only gets the diagnostic
// message; anything further along is parked in stopped.
func (o *Orchestrator) ReportStartupFailure(ctx context.Context, id string, cause error) {
	msg := fmt.Sprintf("Error! Workspace startup failed. Detail: %v", cause)
	ws, err := o.store.GetWorkspace(ctx, id)
	if err == nil && ws.State == core.StateUninitialized {
		if err := o.UpdateMessage(ctx, id, msg); err != nil {
			o.log.Error("failed to record startup failure message", zap.String("workspace_id", id), zap.Error(err))
		}
		return
	}
	if err := o.UpdateState(ctx, id, core.StateStopped, msg); err != nil {
		o.log.Error("failed to record startup failure state", zap.String("workspace_id", id), zap.Error(err))
	}
}

func (o *Orchestrator) publishState(id string, state core.WorkspaceState, message string) {
	o.notifier.Publish(notify.WorkspaceRoom(id), notify.EventStateChange, map[string]any{
		"state":   string(state),
		"message": message,
	})
}
