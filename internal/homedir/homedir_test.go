package homedir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/content"
	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/objstore"
)

func testWorkspace(loc core.HomedirLocation) core.Workspace {
	return core.Workspace{
		ID:              "ws-1",
		CourseID:        "cs101",
		QuestionID:      "q1",
		State:           core.StateUninitialized,
		Version:         1,
		HomedirLocation: loc,
	}
}

// seedContent lays out <root>/cs101/q1/workspace with the given files.
func seedContent(t *testing.T, files map[string]string) *content.DirProvider {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "cs101", "q1", "workspace")
	for name, body := range files {
		p := filepath.Join(base, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return content.NewDirProvider(root)
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open archive %s: %s", path, err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestSelector_UnknownBackend(t *testing.T) {
	s := NewSelector(nil, nil)
	_, err := s.ForLocation("tape_drive")
	if !core.IsCode(err, core.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestSelector_KnownBackends(t *testing.T) {
	obj := &ObjectStore{}
	fsb := &Filesystem{}
	s := NewSelector(obj, fsb)
	if b, err := s.ForLocation(core.LocationObjectStore); err != nil || b != Backend(obj) {
		t.Fatalf("object store selection failed: %v", err)
	}
	if b, err := s.ForLocation(core.LocationNetworkedFilesystem); err != nil || b != Backend(fsb) {
		t.Fatalf("filesystem selection failed: %v", err)
	}
}

func TestObjectStore_MaterializeUploadsArchiveAndMirror(t *testing.T) {
	ctx := context.Background()
	client, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	provider := seedContent(t, map[string]string{"main.py": "print(1)\n", "lib/util.py": "x = 1\n"})
	b := NewObjectStore(client, provider, t.TempDir(), 4, zap.NewNop())

	ws := testWorkspace(core.LocationObjectStore)
	res, err := b.MaterializeInitialContent(ctx, ws)
	if err != nil {
		t.Fatalf("materialize failed: %s", err)
	}
	if res != nil {
		t.Fatal("object store materialize must return nil (already durably placed)")
	}

	// Initial archive present under the version namespace.
	dst := filepath.Join(t.TempDir(), "initial.zip")
	if err := client.GetObject(ctx, ws.RemotePrefix()+"/initial.zip", dst); err != nil {
		t.Fatalf("initial.zip not uploaded: %s", err)
	}
	names := zipEntries(t, dst)
	if len(names) != 2 {
		t.Fatalf("expected 2 archive entries, got %v", names)
	}

	// Individual files mirrored under current/.
	keys, err := client.ListObjects(ctx, ws.RemotePrefix()+"/current")
	if err != nil || len(keys) != 2 {
		t.Fatalf("expected 2 mirrored objects, got %v (%v)", keys, err)
	}
}

func TestObjectStore_MaterializeWithoutStarterUploadsEmptyArchive(t *testing.T) {
	ctx := context.Background()
	client, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	provider := content.NewDirProvider(t.TempDir())
	b := NewObjectStore(client, provider, t.TempDir(), 4, zap.NewNop())

	ws := testWorkspace(core.LocationObjectStore)
	if _, err := b.MaterializeInitialContent(ctx, ws); err != nil {
		t.Fatalf("materialize failed: %s", err)
	}

	dst := filepath.Join(t.TempDir(), "initial.zip")
	if err := client.GetObject(ctx, ws.RemotePrefix()+"/initial.zip", dst); err != nil {
		t.Fatalf("empty initial.zip not uploaded: %s", err)
	}
	if names := zipEntries(t, dst); len(names) != 0 {
		t.Fatalf("expected empty archive, got %v", names)
	}
}

func TestObjectStore_MaterializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	provider := seedContent(t, map[string]string{"main.py": "pass\n"})
	b := NewObjectStore(client, provider, t.TempDir(), 2, zap.NewNop())

	ws := testWorkspace(core.LocationObjectStore)
	for i := 0; i < 3; i++ {
		if _, err := b.MaterializeInitialContent(ctx, ws); err != nil {
			t.Fatalf("materialize run %d failed: %s", i, err)
		}
	}
	keys, err := client.ListObjects(ctx, ws.RemotePrefix())
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 { // initial.zip + current/main.py
		t.Fatalf("repeated materialization changed the namespace: %v", keys)
	}
}

func TestObjectStore_FetchSkipsMissingFiles(t *testing.T) {
	ctx := context.Background()
	client, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	provider := seedContent(t, map[string]string{"solution.py": "answer = 42\n"})
	b := NewObjectStore(client, provider, t.TempDir(), 4, zap.NewNop())

	ws := testWorkspace(core.LocationObjectStore)
	if _, err := b.MaterializeInitialContent(ctx, ws); err != nil {
		t.Fatal(err)
	}

	path, err := b.FetchGradedFiles(ctx, ws, []string{"solution.py", "report.md", "out/result.txt"})
	if err != nil {
		t.Fatalf("fetch failed: %s", err)
	}
	names := zipEntries(t, path)
	if len(names) != 1 || names[0] != "solution.py" {
		t.Fatalf("expected only solution.py, got %v", names)
	}
}

func TestObjectStore_FetchCleansStagingDir(t *testing.T) {
	ctx := context.Background()
	client, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()
	provider := seedContent(t, map[string]string{"a.txt": "a"})
	b := NewObjectStore(client, provider, workDir, 2, zap.NewNop())

	ws := testWorkspace(core.LocationObjectStore)
	if _, err := b.MaterializeInitialContent(ctx, ws); err != nil {
		t.Fatal(err)
	}
	if _, err := b.FetchGradedFiles(ctx, ws, []string{"a.txt"}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), "graded-") {
			t.Fatalf("staging dir left behind: %s", e.Name())
		}
	}
}

func TestFilesystem_MaterializeStagesButDoesNotPlace(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	provider := seedContent(t, map[string]string{"main.c": "int main(){}\n"})
	b := NewFilesystem(root, provider, t.TempDir(), -1, -1, 4, zap.NewNop())

	ws := testWorkspace(core.LocationNetworkedFilesystem)
	res, err := b.MaterializeInitialContent(ctx, ws)
	if err != nil {
		t.Fatalf("materialize failed: %s", err)
	}
	if res == nil {
		t.Fatal("filesystem materialize must return a staged result")
	}
	if res.DestPath != filepath.Join(root, "ws-1-1") {
		t.Errorf("unexpected destination: %s", res.DestPath)
	}
	if !strings.HasPrefix(res.SourcePath, res.DestPath+".staging.") {
		t.Errorf("staging path not derived from destination: %s", res.SourcePath)
	}

	// Content staged under the private path, destination untouched.
	if _, err := os.Stat(filepath.Join(res.SourcePath, "main.c")); err != nil {
		t.Errorf("staged file missing: %s", err)
	}
	if _, err := os.Stat(res.DestPath); !os.IsNotExist(err) {
		t.Error("destination must not exist until the locked move")
	}
}

func TestFilesystem_MaterializeUsesFreshStagingSuffix(t *testing.T) {
	ctx := context.Background()
	provider := seedContent(t, map[string]string{"a": "a"})
	b := NewFilesystem(t.TempDir(), provider, t.TempDir(), -1, -1, 1, zap.NewNop())

	ws := testWorkspace(core.LocationNetworkedFilesystem)
	r1, err := b.MaterializeInitialContent(ctx, ws)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := b.MaterializeInitialContent(ctx, ws)
	if err != nil {
		t.Fatal(err)
	}
	if r1.SourcePath == r2.SourcePath {
		t.Fatal("two materialize attempts shared a staging path")
	}
}

func TestFilesystem_FetchCollectsExistingFilesOnly(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	b := NewFilesystem(root, content.NewDirProvider(t.TempDir()), t.TempDir(), -1, -1, 4, zap.NewNop())

	ws := testWorkspace(core.LocationNetworkedFilesystem)
	gen := filepath.Join(root, ws.LocalDirName())
	os.MkdirAll(filepath.Join(gen, "out"), 0o755)
	os.WriteFile(filepath.Join(gen, "answer.txt"), []byte("42"), 0o644)
	os.WriteFile(filepath.Join(gen, "out", "log.txt"), []byte("ok"), 0o644)

	path, err := b.FetchGradedFiles(ctx, ws, []string{"answer.txt", "out/log.txt", "missing.txt"})
	if err != nil {
		t.Fatalf("fetch failed: %s", err)
	}
	names := zipEntries(t, path)
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %v", names)
	}
	if names[0] != "answer.txt" || names[1] != "out/log.txt" {
		t.Errorf("unexpected entries: %v", names)
	}
}

func TestSafeGradedName(t *testing.T) {
	for _, name := range []string{"a.txt", "out/log.txt", "a..b.txt", "dir/sub/file"} {
		if !safeGradedName(name) {
			t.Errorf("%q rejected", name)
		}
	}
	for _, name := range []string{"", ".", "..", "../x", "a/../../x", "/etc/passwd"} {
		if safeGradedName(name) {
			t.Errorf("%q accepted", name)
		}
	}
}

func TestFilesystem_FetchRejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	b := NewFilesystem(root, content.NewDirProvider(t.TempDir()), t.TempDir(), -1, -1, 4, zap.NewNop())

	ws := testWorkspace(core.LocationNetworkedFilesystem)
	gen := filepath.Join(root, ws.LocalDirName())
	os.MkdirAll(gen, 0o755)
	os.WriteFile(filepath.Join(gen, "ok.txt"), []byte("ok"), 0o644)
	// Sits outside the workspace directory; a climbing catalog entry
	// would otherwise reach it.
	os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o644)

	path, err := b.FetchGradedFiles(ctx, ws, []string{"ok.txt", "../secret.txt", "a/../../secret.txt", "/etc/passwd"})
	if err != nil {
		t.Fatalf("fetch failed: %s", err)
	}
	names := zipEntries(t, path)
	if len(names) != 1 || names[0] != "ok.txt" {
		t.Fatalf("expected only ok.txt, got %v", names)
	}
}

func TestObjectStore_FetchRejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	client, err := objstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	provider := seedContent(t, map[string]string{"solution.py": "answer = 42\n"})
	b := NewObjectStore(client, provider, t.TempDir(), 2, zap.NewNop())

	ws := testWorkspace(core.LocationObjectStore)
	if _, err := b.MaterializeInitialContent(ctx, ws); err != nil {
		t.Fatal(err)
	}

	// "../1/initial.zip" resolves to a real object one level above the
	// current prefix; it must never be served as a graded file.
	path, err := b.FetchGradedFiles(ctx, ws, []string{"solution.py", "../1/initial.zip", "../../ws-2/1/current/solution.py"})
	if err != nil {
		t.Fatalf("fetch failed: %s", err)
	}
	names := zipEntries(t, path)
	if len(names) != 1 || names[0] != "solution.py" {
		t.Fatalf("expected only solution.py, got %v", names)
	}
}
