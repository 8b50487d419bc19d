package objstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local implements Client against a directory tree. Puts are atomic per
// object: content lands in a temp file first and is renamed into place,
// so a reader never observes a partial write. This is the dev and test
// deployment target; S3-style clients satisfy the same interface.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("object store root: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) keyPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) PutObject(ctx context.Context, key, srcPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := l.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	tmp := dst + ".put." + uuid.NewString()
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer src.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (l *Local) PutDirectory(ctx context.Context, prefix, srcDir string) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		return l.PutObject(ctx, key, p)
	})
}

func (l *Local) GetObject(ctx context.Context, key, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(l.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("get %s: %w", key, ErrNotExist)
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("get %s: %w", key, err)
	}
	return out.Close()
}

func (l *Local) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := l.keyPath(prefix)
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || strings.Contains(d.Name(), ".put.") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		keys = append(keys, prefix+"/"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}
