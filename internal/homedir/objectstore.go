package homedir

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursebench/workspaced/internal/archive"
	"github.com/coursebench/workspaced/internal/content"
	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/objstore"
	"github.com/coursebench/workspaced/internal/observability"
)

// ObjectStore keeps workspace contents as objects under a per-version
// prefix. Initialization needs no lock: the namespace is unique per
// generation and every put is atomic, so concurrent initializations only
// repeat idempotent writes.
type ObjectStore struct {
	client  objstore.Client
	content content.Provider
	workDir string
	fanOut  int
	log     *zap.Logger
}

func NewObjectStore(client objstore.Client, provider content.Provider, workDir string, fanOut int, log *zap.Logger) *ObjectStore {
	if fanOut < 1 {
		fanOut = 1
	}
	return &ObjectStore{client: client, content: provider, workDir: workDir, fanOut: fanOut, log: log}
}

func (b *ObjectStore) MaterializeInitialContent(ctx context.Context, ws core.Workspace) (*core.InitResult, error) {
	start := time.Now()
	defer func() {
		observability.MaterializeDuration.WithLabelValues("object_store").Observe(time.Since(start).Seconds())
	}()
	log := observability.WorkspaceLogger(b.log, ws.ID, ws.Version)

	starter, hasStarter := b.content.StarterFilesPath(ws.CourseID, ws.QuestionID)
	if !hasStarter {
		log.Info("no starter files for question, uploading empty initial archive",
			zap.String("course_id", ws.CourseID), zap.String("question_id", ws.QuestionID))
	}

	zipPath := filepath.Join(b.workDir, fmt.Sprintf("%s-%d-initial.zip", ws.ID, ws.Version))
	srcDir := ""
	if hasStarter {
		srcDir = starter
	}
	if err := archive.ArchiveDir(zipPath, srcDir); err != nil {
		return nil, core.WrapError(core.ErrBackend, "build initial archive", err)
	}
	defer os.Remove(zipPath)

	prefix := ws.RemotePrefix()
	if err := b.client.PutObject(ctx, path.Join(prefix, "initial.zip"), zipPath); err != nil {
		return nil, core.WrapError(core.ErrBackend, "upload initial archive", err)
	}
	if hasStarter {
		if err := b.client.PutDirectory(ctx, path.Join(prefix, "current"), starter); err != nil {
			return nil, core.WrapError(core.ErrBackend, "mirror starter files", err)
		}
	}

	log.Info("initial content uploaded", zap.String("prefix", prefix))
	// Content is durably committed; nothing left for the caller to place.
	return nil, nil
}

func (b *ObjectStore) FetchGradedFiles(ctx context.Context, ws core.Workspace, files []string) (string, error) {
	start := time.Now()
	defer func() {
		observability.GradedFetchDuration.WithLabelValues("object_store").Observe(time.Since(start).Seconds())
	}()
	log := observability.WorkspaceLogger(b.log, ws.ID, ws.Version)

	staging, err := os.MkdirTemp(b.workDir, ws.ID+"-graded-")
	if err != nil {
		return "", core.WrapError(core.ErrBackend, "create fetch staging dir", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Warn("cleanup of fetch staging dir failed", zap.String("dir", staging), zap.Error(err))
		}
	}()

	prefix := ws.RemotePrefix()
	var (
		mu  sync.Mutex
		got []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.fanOut)
	for _, name := range files {
		if !safeGradedName(name) {
			observability.GradedFilesSkippedTotal.WithLabelValues("object_store").Inc()
			log.Warn("graded file name escapes the workspace namespace, skipping", zap.String("file", name))
			continue
		}
		g.Go(func() error {
			dst := filepath.Join(staging, filepath.FromSlash(name))
			err := b.client.GetObject(gctx, path.Join(prefix, "current", name), dst)
			if err != nil {
				if objstore.IsNotExist(err) {
					observability.GradedFilesSkippedTotal.WithLabelValues("object_store").Inc()
					log.Info("graded file not yet produced, skipping", zap.String("file", name))
					return nil
				}
				return err
			}
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", core.WrapError(core.ErrBackend, "download graded files", err)
	}

	archivePath := filepath.Join(b.workDir, fmt.Sprintf("%s-%d-graded.zip", ws.ID, ws.Version))
	err = archive.ArchiveFiles(archivePath, got, func(name string) string {
		return filepath.Join(staging, filepath.FromSlash(name))
	})
	if err != nil {
		return "", core.WrapError(core.ErrBackend, "build graded archive", err)
	}
	log.Info("graded files archived", zap.Int("requested", len(files)), zap.Int("collected", len(got)))
	return archivePath, nil
}
