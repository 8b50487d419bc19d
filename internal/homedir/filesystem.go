package homedir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursebench/workspaced/internal/archive"
	"github.com/coursebench/workspaced/internal/content"
	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/observability"
)

// Filesystem keeps workspace contents on a networked filesystem mounted
// at root. Rename is not safe to run concurrently from multiple callers
// on this mount and there is no create-or-replace-directory primitive,
// so the materialize step only stages content under a private random
// path; the orchestrator performs the staging->final move while holding
// the workspace row lock.
type Filesystem struct {
	root    string
	content content.Provider
	workDir string
	uid     int
	gid     int
	fanOut  int
	log     *zap.Logger
}

func NewFilesystem(root string, provider content.Provider, workDir string, uid, gid, fanOut int, log *zap.Logger) *Filesystem {
	if fanOut < 1 {
		fanOut = 1
	}
	return &Filesystem{root: root, content: provider, workDir: workDir, uid: uid, gid: gid, fanOut: fanOut, log: log}
}

func (b *Filesystem) MaterializeInitialContent(ctx context.Context, ws core.Workspace) (*core.InitResult, error) {
	start := time.Now()
	defer func() {
		observability.MaterializeDuration.WithLabelValues("networked_fs").Observe(time.Since(start).Seconds())
	}()
	log := observability.WorkspaceLogger(b.log, ws.ID, ws.Version)

	dest := filepath.Join(b.root, ws.LocalDirName())
	// Fresh random suffix per attempt: a crashed or concurrent earlier
	// attempt can never collide with this staging path.
	staging := dest + ".staging." + uuid.NewString()

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, core.WrapError(core.ErrBackend, "create staging dir", err)
	}

	if starter, ok := b.content.StarterFilesPath(ws.CourseID, ws.QuestionID); ok {
		if err := copyTree(ctx, starter, staging); err != nil {
			os.RemoveAll(staging)
			return nil, core.WrapError(core.ErrBackend, "copy starter files", err)
		}
	} else {
		log.Info("no starter files for question, staging empty homedir",
			zap.String("course_id", ws.CourseID), zap.String("question_id", ws.QuestionID))
	}

	if b.uid >= 0 {
		if err := chownTree(staging, b.uid, b.gid); err != nil {
			os.RemoveAll(staging)
			return nil, core.WrapError(core.ErrBackend, "set execution ownership", err)
		}
	}

	log.Info("initial content staged", zap.String("staging", staging), zap.String("dest", dest))
	return &core.InitResult{SourcePath: staging, DestPath: dest}, nil
}

func (b *Filesystem) FetchGradedFiles(ctx context.Context, ws core.Workspace, files []string) (string, error) {
	start := time.Now()
	defer func() {
		observability.GradedFetchDuration.WithLabelValues("networked_fs").Observe(time.Since(start).Seconds())
	}()
	log := observability.WorkspaceLogger(b.log, ws.ID, ws.Version)

	base := filepath.Join(b.root, ws.LocalDirName())
	var (
		mu  sync.Mutex
		got []string
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.fanOut)
	for _, name := range files {
		if !safeGradedName(name) {
			observability.GradedFilesSkippedTotal.WithLabelValues("networked_fs").Inc()
			log.Warn("graded file name escapes the workspace directory, skipping", zap.String("file", name))
			continue
		}
		g.Go(func() error {
			p := filepath.Join(base, filepath.FromSlash(name))
			info, err := os.Stat(p)
			if err != nil || !info.Mode().IsRegular() {
				observability.GradedFilesSkippedTotal.WithLabelValues("networked_fs").Inc()
				log.Info("graded file not yet produced, skipping", zap.String("file", name))
				return nil
			}
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", core.WrapError(core.ErrBackend, "stat graded files", err)
	}

	archivePath := filepath.Join(b.workDir, fmt.Sprintf("%s-%d-graded.zip", ws.ID, ws.Version))
	err := archive.ArchiveFiles(archivePath, got, func(name string) string {
		return filepath.Join(base, filepath.FromSlash(name))
	})
	if err != nil {
		return "", core.WrapError(core.ErrBackend, "build graded archive", err)
	}
	log.Info("graded files archived", zap.Int("requested", len(files)), zap.Int("collected", len(got)))
	return archivePath, nil
}
