package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/hostctl"
	"github.com/coursebench/workspaced/internal/observability"
)

type stateEvent struct {
	state   core.WorkspaceState
	message string
}

// Startup takes a workspace from uninitialized or stopped to launching
// and tells its host to start the container. It is safe to call
// concurrently from any number of processes: the row lock turns the race
// into an election where exactly one caller proceeds to host assignment.
// Errors propagate to the caller, which is responsible for surfacing
// them (see ReportStartupFailure); the only retrying done here is the
// bounded host-assignment loop.
func (o *Orchestrator) Startup(ctx context.Context, workspaceID string) error {
	start := time.Now()
	outcome := "failure"
	defer func() {
		observability.StartupDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	ws, err := o.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	log := observability.WorkspaceLogger(o.log, ws.ID, ws.Version)

	if ws.State != core.StateUninitialized && ws.State != core.StateStopped {
		log.Info("startup is a no-op in current state", zap.String("state", string(ws.State)))
		outcome = "noop"
		return nil
	}

	// Materialize outside any lock: this is the I/O-heavy step and must
	// not serialize against other workspaces or other callers.
	var initRes *core.InitResult
	if ws.State == core.StateUninitialized {
		backend, err := o.backends.ForLocation(ws.HomedirLocation)
		if err != nil {
			return err
		}
		initRes, err = backend.MaterializeInitialContent(ctx, ws)
		if err != nil {
			return fmt.Errorf("materialize initial content: %w", err)
		}
	}

	var (
		wasFirstInit     bool
		shouldAssignHost bool
		placed           bool
		pending          []stateEvent
	)
	lockStart := time.Now()
	err = o.store.WithLockedWorkspace(ctx, workspaceID, func(ctx context.Context, locked core.Workspace, tx LockedWorkspace) error {
		observability.LockWaitSeconds.Observe(time.Since(lockStart).Seconds())

		// State may have moved since the unlocked read.
		st := locked.State
		if st == core.StateUninitialized {
			if initRes != nil {
				if err := placeHomedir(initRes); err != nil {
					return core.WrapError(core.ErrBackend, "place workspace files", err)
				}
				placed = true
			}
			if err := tx.SetState(ctx, core.StateStopped, "Workspace files initialized"); err != nil {
				return err
			}
			observability.StateTransitions.WithLabelValues(string(core.StateUninitialized), string(core.StateStopped)).Inc()
			pending = append(pending, stateEvent{core.StateStopped, "Workspace files initialized"})
			st = core.StateStopped
			wasFirstInit = true
		}
		if st == core.StateStopped {
			if err := tx.SetState(ctx, core.StateLaunching, "Launching workspace"); err != nil {
				return err
			}
			observability.StateTransitions.WithLabelValues(string(core.StateStopped), string(core.StateLaunching)).Inc()
			pending = append(pending, stateEvent{core.StateLaunching, "Launching workspace"})
			shouldAssignHost = true
		}
		return nil
	})
	if initRes != nil && !placed {
		// A concurrent caller won the initialization; our staged copy is
		// orphaned. Best effort removal.
		if rmErr := os.RemoveAll(initRes.SourcePath); rmErr != nil {
			log.Warn("cleanup of unused staging dir failed",
				zap.String("dir", initRes.SourcePath), zap.Error(rmErr))
		}
	}
	if err != nil {
		return err
	}
	// Broadcast after the transaction committed, never before.
	for _, ev := range pending {
		o.publishState(workspaceID, ev.state, ev.message)
	}

	if !shouldAssignHost {
		// Another caller already advanced the workspace past stopped; it
		// owns host assignment.
		log.Info("another caller owns the launch, stopping here")
		outcome = "noop"
		return nil
	}
	if !o.sched.Enabled() {
		log.Info("workspace subsystem disabled, skipping host assignment")
		outcome = "disabled"
		return nil
	}

	hostID, attempts, err := o.assignWithRetry(ctx, workspaceID)
	if err != nil {
		return err
	}
	observability.HostAssignAttempts.Observe(float64(attempts))

	if err := o.UpdateMessage(ctx, workspaceID, "Sending launch command to host"); err != nil {
		return err
	}
	if _, err := o.control.Send(ctx, workspaceID, hostctl.ActionInit, map[string]any{
		"useInitialZip": wasFirstInit,
	}); err != nil {
		return fmt.Errorf("send init command: %w", err)
	}

	log.Info("launch command sent",
		zap.String("host_id", hostID),
		zap.Int("assign_attempts", attempts),
		zap.Bool("use_initial_zip", wasFirstInit))
	outcome = "success"
	return nil
}

// assignWithRetry asks the scheduler for a host until one is granted,
// publishing a progress message and sleeping between empty attempts. It
// fails with ErrResourceExhausted once the configured attempt budget is
// spent; a stuck fleet needs operator attention, not an unbounded loop.
func (o *Orchestrator) assignWithRetry(ctx context.Context, workspaceID string) (string, int, error) {
	loopStart := time.Now()
	for attempt := 1; ; attempt++ {
		hostID, err := o.sched.Assign(ctx, workspaceID)
		if err != nil {
			return "", attempt, err
		}
		if hostID != "" {
			return hostID, attempt, nil
		}
		if attempt >= o.cfg.MaxLaunchAttempts {
			return "", attempt, core.NewAppError(core.ErrResourceExhausted,
				fmt.Sprintf("no host capacity after %d attempts", attempt))
		}

		msg := fmt.Sprintf("Deploying more computational resources (%g seconds elapsed)", time.Since(loopStart).Seconds())
		if err := o.UpdateMessage(ctx, workspaceID, msg); err != nil {
			return "", attempt, err
		}
		select {
		case <-ctx.Done():
			return "", attempt, ctx.Err()
		case <-time.After(o.cfg.LaunchBackoff):
		}
	}
}

// placeHomedir moves staged content into its final location. Any
// pre-existing destination is preserved under a timestamped backup name
// first; "did not exist" is the expected first-run case and is the only
// swallowed error. Runs under the workspace row lock because rename on
// the networked filesystem is not safe against concurrent callers.
func placeHomedir(res *core.InitResult) error {
	backup := res.DestPath + ".bak." + time.Now().UTC().Format("20060102T150405.000000000Z")
	if err := os.Rename(res.DestPath, backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("move aside %s: %w", res.DestPath, err)
	}
	if err := os.Rename(res.SourcePath, res.DestPath); err != nil {
		return fmt.Errorf("move staged content into place: %w", err)
	}
	return nil
}
