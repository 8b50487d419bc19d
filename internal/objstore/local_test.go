package objstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.PutObject(ctx, "workspaces/ws-1/1/current/a.txt", src); err != nil {
		t.Fatalf("put failed: %s", err)
	}

	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := l.GetObject(ctx, "workspaces/ws-1/1/current/a.txt", dst); err != nil {
		t.Fatalf("get failed: %s", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "payload" {
		t.Errorf("expected payload, got %q", got)
	}
}

func TestLocal_GetMissingIsNotExist(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = l.GetObject(context.Background(), "nope/missing", filepath.Join(t.TempDir(), "x"))
	if !IsNotExist(err) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLocal_PutDirectoryAndList(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	srcDir := t.TempDir()
	for _, name := range []string{"x.py", "sub/y.py"} {
		p := filepath.Join(srcDir, name)
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := l.PutDirectory(ctx, "workspaces/ws-2/3/current", srcDir); err != nil {
		t.Fatalf("put directory failed: %s", err)
	}

	keys, err := l.ListObjects(ctx, "workspaces/ws-2/3/current")
	if err != nil {
		t.Fatalf("list failed: %s", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestLocal_ListMissingPrefixIsEmpty(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	keys, err := l.ListObjects(context.Background(), "no/such/prefix")
	if err != nil {
		t.Fatalf("list failed: %s", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}
