package store

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coursebench/workspaced/internal/core"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wsd"),
		postgres.WithUsername("wsd"),
		postgres.WithPassword("wsd_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}
	defer pgContainer.Terminate(ctx)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	pool, err := NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect: %s", err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	s := New(pool)

	t.Run("CreateWorkspace", func(t *testing.T) {
		ws, err := s.CreateWorkspace(ctx, CreateWorkspaceParams{
			ID:              "ws-1",
			CourseID:        "cs101",
			QuestionID:      "q1",
			HomedirLocation: core.LocationObjectStore,
		})
		if err != nil {
			t.Fatalf("failed to create workspace: %s", err)
		}
		if ws.State != core.StateUninitialized {
			t.Errorf("expected uninitialized, got %s", ws.State)
		}
		if ws.Version != 1 {
			t.Errorf("expected version 1, got %d", ws.Version)
		}
	})

	t.Run("CreateWorkspaceDuplicate", func(t *testing.T) {
		_, err := s.CreateWorkspace(ctx, CreateWorkspaceParams{
			ID: "ws-1", CourseID: "cs101", QuestionID: "q1",
			HomedirLocation: core.LocationObjectStore,
		})
		if !core.IsCode(err, core.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("GetWorkspaceNotFound", func(t *testing.T) {
		_, err := s.GetWorkspace(ctx, "nope")
		if !core.IsCode(err, core.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("LockedStateWrite", func(t *testing.T) {
		err := s.WithLockedWorkspace(ctx, "ws-1", func(ctx context.Context, ws core.Workspace, tx *Tx) error {
			if ws.State != core.StateUninitialized {
				t.Errorf("locked read saw %s", ws.State)
			}
			return tx.SetState(ctx, core.StateStopped, "Workspace files initialized")
		})
		if err != nil {
			t.Fatalf("locked write failed: %s", err)
		}
		ws, _ := s.GetWorkspace(ctx, "ws-1")
		if ws.State != core.StateStopped {
			t.Errorf("locked write not committed, state %s", ws.State)
		}
	})

	t.Run("LockedCallbackErrorRollsBack", func(t *testing.T) {
		wantErr := core.NewAppError(core.ErrBackend, "boom")
		err := s.WithLockedWorkspace(ctx, "ws-1", func(ctx context.Context, ws core.Workspace, tx *Tx) error {
			if err := tx.SetState(ctx, core.StateLaunching, "should not persist"); err != nil {
				return err
			}
			return wantErr
		})
		if !core.IsCode(err, core.ErrBackend) {
			t.Fatalf("expected callback error back, got %v", err)
		}
		ws, _ := s.GetWorkspace(ctx, "ws-1")
		if ws.State != core.StateStopped {
			t.Errorf("rollback failed, state %s", ws.State)
		}
	})

	t.Run("AssignHostWithCapacity", func(t *testing.T) {
		if err := s.UpsertHost(ctx, core.Host{ID: "h1", Hostname: "h1:8100", State: core.HostReady}); err != nil {
			t.Fatalf("upsert host: %s", err)
		}
		if err := s.UpsertHost(ctx, core.Host{ID: "h2", Hostname: "h2:8100", State: core.HostDraining}); err != nil {
			t.Fatalf("upsert host: %s", err)
		}

		hostID, err := s.AssignHostWithCapacity(ctx, "ws-1", 2)
		if err != nil {
			t.Fatalf("assign: %s", err)
		}
		if hostID != "h1" {
			t.Errorf("expected h1 (only ready host), got %q", hostID)
		}

		host, err := s.SelectWorkspaceHost(ctx, "ws-1")
		if err != nil {
			t.Fatalf("select workspace host: %s", err)
		}
		if host.Hostname != "h1:8100" || host.LoadCount != 1 {
			t.Errorf("unexpected host row: %+v", host)
		}
	})

	t.Run("AssignHostCapacityExhausted", func(t *testing.T) {
		// h1 already carries one workspace; threshold 1 means full.
		hostID, err := s.AssignHostWithCapacity(ctx, "ws-1", 1)
		if err != nil {
			t.Fatalf("assign: %s", err)
		}
		if hostID != "" {
			t.Errorf("expected no capacity, got %q", hostID)
		}
	})

	t.Run("SelectWorkspaceHostUnassigned", func(t *testing.T) {
		_, err := s.CreateWorkspace(ctx, CreateWorkspaceParams{
			ID: "ws-2", CourseID: "cs101", QuestionID: "q2",
			HomedirLocation: core.LocationNetworkedFilesystem,
		})
		if err != nil {
			t.Fatalf("create workspace: %s", err)
		}
		_, err = s.SelectWorkspaceHost(ctx, "ws-2")
		if !core.IsCode(err, core.ErrHostNotFound) {
			t.Errorf("expected ErrHostNotFound, got %v", err)
		}
	})

	t.Run("GradedFileListDefaultsEmpty", func(t *testing.T) {
		list, err := s.SelectWorkspaceGradedFileList(ctx, "ws-1")
		if err != nil {
			t.Fatalf("select graded file list: %s", err)
		}
		if len(list.Files) != 0 {
			t.Errorf("expected empty catalog, got %v", list.Files)
		}
		if list.Version != 1 {
			t.Errorf("expected version 1, got %d", list.Version)
		}
	})

	t.Run("GradedFileListFromCatalog", func(t *testing.T) {
		if err := s.SetGradedFileList(ctx, "cs101", "q1", []string{"solution.py", "report.md"}); err != nil {
			t.Fatalf("set graded file list: %s", err)
		}
		list, err := s.SelectWorkspaceGradedFileList(ctx, "ws-1")
		if err != nil {
			t.Fatalf("select graded file list: %s", err)
		}
		if len(list.Files) != 2 || list.Files[0] != "solution.py" {
			t.Errorf("unexpected catalog: %v", list.Files)
		}
	})

	t.Run("UpdateHeartbeat", func(t *testing.T) {
		if err := s.UpdateHeartbeat(ctx, "ws-1"); err != nil {
			t.Fatalf("heartbeat: %s", err)
		}
		ws, _ := s.GetWorkspace(ctx, "ws-1")
		if ws.HeartbeatAt == nil {
			t.Error("heartbeat_at not recorded")
		}
	})

	t.Run("ResetBumpsVersionAndReleasesHost", func(t *testing.T) {
		ws, err := s.ResetWorkspace(ctx, "ws-1", core.LocationNetworkedFilesystem)
		if err != nil {
			t.Fatalf("reset: %s", err)
		}
		if ws.Version != 2 {
			t.Errorf("expected version 2, got %d", ws.Version)
		}
		if ws.State != core.StateUninitialized {
			t.Errorf("expected uninitialized, got %s", ws.State)
		}
		if ws.HomedirLocation != core.LocationNetworkedFilesystem {
			t.Errorf("location not switched: %s", ws.HomedirLocation)
		}
		if ws.AssignedHostID != nil {
			t.Error("host assignment not released")
		}
		if ws.HeartbeatAt != nil {
			t.Error("heartbeat not cleared")
		}

		hosts, err := s.ListHosts(ctx)
		if err != nil {
			t.Fatalf("list hosts: %s", err)
		}
		for _, h := range hosts {
			if h.ID == "h1" && h.LoadCount != 0 {
				t.Errorf("h1 load not returned, got %d", h.LoadCount)
			}
		}
	})

	t.Run("GradedFileListTracksNewGeneration", func(t *testing.T) {
		list, err := s.SelectWorkspaceGradedFileList(ctx, "ws-1")
		if err != nil {
			t.Fatalf("select graded file list: %s", err)
		}
		if list.Version != 2 {
			t.Errorf("expected version 2 after reset, got %d", list.Version)
		}
	})
}
