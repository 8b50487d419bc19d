package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebench/workspaced/internal/core"
)

// Store is the Postgres persistence layer. All queries are
// schema-qualified against the wsd schema created by Migrate.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const workspaceColumns = `id, course_id, question_id, state, message, version,
	homedir_location, assigned_host_id, heartbeat_at, created_at, updated_at`

func scanWorkspace(row pgx.Row) (core.Workspace, error) {
	var ws core.Workspace
	err := row.Scan(&ws.ID, &ws.CourseID, &ws.QuestionID, &ws.State, &ws.Message,
		&ws.Version, &ws.HomedirLocation, &ws.AssignedHostID, &ws.HeartbeatAt,
		&ws.CreatedAt, &ws.UpdatedAt)
	return ws, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type CreateWorkspaceParams struct {
	ID              string
	CourseID        string
	QuestionID      string
	HomedirLocation core.HomedirLocation
}

func (s *Store) CreateWorkspace(ctx context.Context, p CreateWorkspaceParams) (core.Workspace, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO wsd.workspaces (id, course_id, question_id, homedir_location)
		VALUES ($1, $2, $3, $4)
		RETURNING `+workspaceColumns,
		p.ID, p.CourseID, p.QuestionID, p.HomedirLocation)
	ws, err := scanWorkspace(row)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Workspace{}, core.NewAppError(core.ErrConflict,
				fmt.Sprintf("workspace %s already exists", p.ID))
		}
		return core.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	return ws, nil
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (core.Workspace, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM wsd.workspaces WHERE id = $1`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Workspace{}, core.NewAppError(core.ErrNotFound,
			fmt.Sprintf("workspace %s not found", id))
	}
	if err != nil {
		return core.Workspace{}, fmt.Errorf("select workspace: %w", err)
	}
	return ws, nil
}

// ListWorkspaces returns all workspaces, optionally filtered by course.
func (s *Store) ListWorkspaces(ctx context.Context, courseID string) ([]core.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM wsd.workspaces ORDER BY created_at`
	args := []any{}
	if courseID != "" {
		query = `SELECT ` + workspaceColumns + ` FROM wsd.workspaces WHERE course_id = $1 ORDER BY created_at`
		args = append(args, courseID)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []core.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWorkspaceState(ctx context.Context, id string, state core.WorkspaceState, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE wsd.workspaces SET state = $2, message = $3, updated_at = now()
		WHERE id = $1`, id, state, message)
	if err != nil {
		return fmt.Errorf("update workspace state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewAppError(core.ErrNotFound, fmt.Sprintf("workspace %s not found", id))
	}
	return nil
}

func (s *Store) UpdateWorkspaceMessage(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE wsd.workspaces SET message = $2, updated_at = now()
		WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("update workspace message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewAppError(core.ErrNotFound, fmt.Sprintf("workspace %s not found", id))
	}
	return nil
}

func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE wsd.workspaces SET heartbeat_at = now(), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewAppError(core.ErrNotFound, fmt.Sprintf("workspace %s not found", id))
	}
	return nil
}

// Tx is the write surface handed to WithLockedWorkspace callbacks.
// Writes go through the locking transaction and commit with it.
type Tx struct {
	tx pgx.Tx
	id string
}

func (t *Tx) SetState(ctx context.Context, state core.WorkspaceState, message string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE wsd.workspaces SET state = $2, message = $3, updated_at = now()
		WHERE id = $1`, t.id, state, message)
	if err != nil {
		return fmt.Errorf("update locked workspace state: %w", err)
	}
	return nil
}

// WithLockedWorkspace opens a transaction, takes the workspace row lock
// with SELECT FOR UPDATE, and runs fn on the freshly read row. The
// transaction commits only when fn returns nil; concurrent callers queue
// on the row lock and each observes the previous caller's committed
// state.
func (s *Store) WithLockedWorkspace(ctx context.Context, id string, fn func(ctx context.Context, ws core.Workspace, tx *Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM wsd.workspaces WHERE id = $1 FOR UPDATE`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NewAppError(core.ErrNotFound, fmt.Sprintf("workspace %s not found", id))
	}
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}

	if err := fn(ctx, ws, &Tx{tx: tx, id: id}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AssignHostWithCapacity atomically picks the least loaded ready host
// under the capacity threshold, bumps its load_count and records it as
// the workspace's host. SKIP LOCKED keeps concurrent assignments from
// queueing on the same host row. Returns "" when no host has capacity.
func (s *Store) AssignHostWithCapacity(ctx context.Context, workspaceID string, capacityThreshold int) (string, error) {
	var hostID string
	err := s.pool.QueryRow(ctx, `
		WITH picked AS (
			SELECT id FROM wsd.hosts
			WHERE state = 'ready' AND load_count < $2
			ORDER BY load_count
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		),
		bumped AS (
			UPDATE wsd.hosts h
			SET load_count = h.load_count + 1, updated_at = now()
			FROM picked WHERE h.id = picked.id
			RETURNING h.id
		)
		UPDATE wsd.workspaces w
		SET assigned_host_id = bumped.id, updated_at = now()
		FROM bumped WHERE w.id = $1
		RETURNING bumped.id`,
		workspaceID, capacityThreshold).Scan(&hostID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("assign host: %w", err)
	}
	return hostID, nil
}

// SelectWorkspaceHost resolves the host currently assigned to a
// workspace.
func (s *Store) SelectWorkspaceHost(ctx context.Context, workspaceID string) (core.Host, error) {
	var h core.Host
	err := s.pool.QueryRow(ctx, `
		SELECT h.id, h.hostname, h.state, h.load_count
		FROM wsd.workspaces w
		JOIN wsd.hosts h ON h.id = w.assigned_host_id
		WHERE w.id = $1`, workspaceID).
		Scan(&h.ID, &h.Hostname, &h.State, &h.LoadCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Host{}, core.NewAppError(core.ErrHostNotFound,
			fmt.Sprintf("no host assigned to workspace %s", workspaceID))
	}
	if err != nil {
		return core.Host{}, fmt.Errorf("select workspace host: %w", err)
	}
	return h, nil
}

// ReleaseWorkspaceHost detaches the workspace from its host and returns
// the host's capacity slot. No-op when nothing is assigned.
func (s *Store) ReleaseWorkspaceHost(ctx context.Context, workspaceID string) error {
	_, err := s.pool.Exec(ctx, `
		WITH released AS (
			UPDATE wsd.workspaces
			SET assigned_host_id = NULL, updated_at = now()
			WHERE id = $1 AND assigned_host_id IS NOT NULL
			RETURNING assigned_host_id AS host_id
		)
		UPDATE wsd.hosts h
		SET load_count = GREATEST(h.load_count - 1, 0), updated_at = now()
		FROM released WHERE h.id = released.host_id`, workspaceID)
	if err != nil {
		return fmt.Errorf("release workspace host: %w", err)
	}
	return nil
}

// ResetWorkspace starts a fresh generation: version is bumped, state
// returns to uninitialized and any host assignment is released. The old
// generation's contents are left untouched under their versioned names.
// A non-empty location switches the storage backend for the new
// generation.
func (s *Store) ResetWorkspace(ctx context.Context, id string, location core.HomedirLocation) (core.Workspace, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.Workspace{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM wsd.workspaces WHERE id = $1 FOR UPDATE`, id)
	ws, err := scanWorkspace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Workspace{}, core.NewAppError(core.ErrNotFound,
			fmt.Sprintf("workspace %s not found", id))
	}
	if err != nil {
		return core.Workspace{}, fmt.Errorf("lock workspace: %w", err)
	}

	if ws.AssignedHostID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE wsd.hosts SET load_count = GREATEST(load_count - 1, 0), updated_at = now()
			WHERE id = $1`, *ws.AssignedHostID)
		if err != nil {
			return core.Workspace{}, fmt.Errorf("release host: %w", err)
		}
	}

	if location == "" {
		location = ws.HomedirLocation
	}
	row = tx.QueryRow(ctx, `
		UPDATE wsd.workspaces
		SET version = version + 1,
			state = 'uninitialized',
			message = 'Workspace reset',
			homedir_location = $2,
			assigned_host_id = NULL,
			heartbeat_at = NULL,
			updated_at = now()
		WHERE id = $1
		RETURNING `+workspaceColumns, id, location)
	ws, err = scanWorkspace(row)
	if err != nil {
		return core.Workspace{}, fmt.Errorf("reset workspace: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Workspace{}, fmt.Errorf("commit: %w", err)
	}
	return ws, nil
}

// SelectWorkspaceGradedFileList joins the workspace with its question's
// graded-file catalog. A workspace whose question has no catalog entry
// gets an empty list for its current generation.
func (s *Store) SelectWorkspaceGradedFileList(ctx context.Context, id string) (core.GradedFileList, error) {
	var list core.GradedFileList
	err := s.pool.QueryRow(ctx, `
		SELECT w.version, COALESCE(q.graded_files, '{}')
		FROM wsd.workspaces w
		LEFT JOIN wsd.questions q
			ON q.course_id = w.course_id AND q.question_id = w.question_id
		WHERE w.id = $1`, id).
		Scan(&list.Version, &list.Files)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.GradedFileList{}, core.NewAppError(core.ErrNotFound,
			fmt.Sprintf("workspace %s not found", id))
	}
	if err != nil {
		return core.GradedFileList{}, fmt.Errorf("select graded file list: %w", err)
	}
	return list, nil
}

// SetGradedFileList creates or replaces a question's graded-file catalog
// entry.
func (s *Store) SetGradedFileList(ctx context.Context, courseID, questionID string, files []string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wsd.questions (course_id, question_id, graded_files)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id, question_id)
		DO UPDATE SET graded_files = EXCLUDED.graded_files`,
		courseID, questionID, files)
	if err != nil {
		return fmt.Errorf("set graded file list: %w", err)
	}
	return nil
}

// UpsertHost registers a host or refreshes its hostname and state.
// load_count is preserved on update; only the assignment queries move it.
func (s *Store) UpsertHost(ctx context.Context, h core.Host) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wsd.hosts (id, hostname, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET hostname = EXCLUDED.hostname, state = EXCLUDED.state, updated_at = now()`,
		h.ID, h.Hostname, h.State)
	if err != nil {
		return fmt.Errorf("upsert host: %w", err)
	}
	return nil
}

func (s *Store) ListHosts(ctx context.Context) ([]core.Host, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, hostname, state, load_count FROM wsd.hosts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var out []core.Host
	for rows.Next() {
		var h core.Host
		if err := rows.Scan(&h.ID, &h.Hostname, &h.State, &h.LoadCount); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
