package core

import (
	"fmt"
	"time"
)

type WorkspaceState string

// States driven by this service. The host agent reports further states
// (stopping, terminated, ...) which are stored and displayed verbatim but
// never produced here.
const (
	StateUninitialized WorkspaceState = "uninitialized"
	StateStopped       WorkspaceState = "stopped"
	StateLaunching     WorkspaceState = "launching"
	StateRunning       WorkspaceState = "running"
)

// HomedirLocation selects the storage backend for a workspace's home
// directory contents. It is fixed when a generation is initialized and
// re-evaluated on reset.
type HomedirLocation string

const (
	LocationObjectStore         HomedirLocation = "object_store"
	LocationNetworkedFilesystem HomedirLocation = "networked_fs"
)

type Workspace struct {
	ID              string          `json:"id"`
	CourseID        string          `json:"course_id"`
	QuestionID      string          `json:"question_id"`
	State           WorkspaceState  `json:"state"`
	Message         string          `json:"message"`
	Version         int64           `json:"version"`
	HomedirLocation HomedirLocation `json:"homedir_location"`
	AssignedHostID  *string         `json:"assigned_host_id,omitempty"`
	HeartbeatAt     *time.Time      `json:"heartbeat_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RemotePrefix is the object-store namespace for one generation of this
// workspace's contents. Version is part of the prefix so two generations
// can never observe each other's files.
func (w *Workspace) RemotePrefix() string {
	return fmt.Sprintf("workspaces/%s/%d", w.ID, w.Version)
}

// LocalDirName is the per-generation directory name used by the
// networked-filesystem backend, relative to its mount root.
func (w *Workspace) LocalDirName() string {
	return fmt.Sprintf("%s-%d", w.ID, w.Version)
}

type HostState string

const (
	HostReady     HostState = "ready"
	HostDraining  HostState = "draining"
	HostUnhealthy HostState = "unhealthy"
)

// Host is a machine running the container runtime. The fleet store owns
// these rows; this service only reads them and bumps load_count through
// the atomic assignment query.
type Host struct {
	ID        string    `json:"id"`
	Hostname  string    `json:"hostname"`
	State     HostState `json:"state"`
	LoadCount int       `json:"load_count"`
}

// InitResult is what a backend's materialize step hands back to the
// orchestrator. nil means the contents are already durably placed (the
// object-store path). A non-nil result means staged contents still need
// an atomic move from SourcePath to DestPath, which the orchestrator
// performs under the workspace row lock.
type InitResult struct {
	SourcePath string
	DestPath   string
}

// GradedFileList is the catalog entry naming which of a workspace's files
// form the submission, together with the generation it applies to.
type GradedFileList struct {
	Version int64
	Files   []string
}
