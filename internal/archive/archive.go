// Package archive builds zip archives on disk, either from a whole
// directory tree or from an enumerated set of files.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Builder streams entries into a zip file. Entries are written in the
// order they are added; Close must be called to produce a valid archive.
type Builder struct {
	f  *os.File
	zw *zip.Writer
}

func Create(dst string) (*Builder, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for archive: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &Builder{f: f, zw: zip.NewWriter(f)}, nil
}

// AddFile stores the contents of srcPath under name. Names use forward
// slashes regardless of platform.
func (b *Builder) AddFile(name, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", srcPath, err)
	}
	hdr.Name = filepath.ToSlash(name)
	hdr.Method = zip.Deflate

	w, err := b.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

// AddDir walks srcDir and stores every regular file, named relative to
// srcDir. Walk order is deterministic (lexical, per filepath.WalkDir).
func (b *Builder) AddDir(srcDir string) error {
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
		return b.AddFile(rel, p)
	})
}

func (b *Builder) Close() error {
	if err := b.zw.Close(); err != nil {
		b.f.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	return b.f.Close()
}

// ArchiveDir writes a zip of srcDir's files to dst. A missing or empty
// srcDir produces a valid empty archive.
func ArchiveDir(dst, srcDir string) error {
	b, err := Create(dst)
	if err != nil {
		return err
	}
	if srcDir != "" {
		if _, err := os.Stat(srcDir); err == nil {
			if err := b.AddDir(srcDir); err != nil {
				b.Close()
				return err
			}
		}
	}
	return b.Close()
}

// ArchiveFiles writes a zip of the named files to dst. names are archive
// entry names; resolve maps a name to its on-disk path. Names are sorted
// so the output is stable regardless of collection order.
func ArchiveFiles(dst string, names []string, resolve func(name string) string) error {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	b, err := Create(dst)
	if err != nil {
		return err
	}
	for _, name := range sorted {
		if err := b.AddFile(name, resolve(name)); err != nil {
			b.Close()
			return err
		}
	}
	return b.Close()
}

// Extract unpacks a zip archive into dstDir. Entry names escaping
// dstDir are rejected.
func Extract(archivePath, dstDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	root := filepath.Clean(dstDir)
	for _, f := range zr.File {
		dst := filepath.Join(root, filepath.FromSlash(f.Name))
		if dst != root && !strings.HasPrefix(dst, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}
