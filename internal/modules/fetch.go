// Package modules drives module instances through their checkout/install and
// deploy state machines, persisting every transition through the entity
// state store.
package modules

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/onramp-hpc/pce/internal/model"
)

// Fetcher copies a module's source tree to a destination directory. A failed
// fetch returns a descriptive error that ends up in the module record.
type Fetcher func(src model.SourceLocation, dest string) error

// FetchLocal fetches a module from a local directory source.
func FetchLocal(src model.SourceLocation, dest string) error {
	if src.Kind != model.SourceKindLocal {
		return fmt.Errorf("unsupported source kind %q", src.Kind)
	}

	info, err := os.Stat(src.Path)
	if os.IsNotExist(err) {
		return fmt.Errorf("Source path %s does not exist", src.Path)
	}
	if err != nil {
		return fmt.Errorf("stat source path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("Source path %s is not a directory", src.Path)
	}

	return CopyTree(src.Path, dest)
}

// CopyTree copies the directory tree at src into dest, creating dest if
// needed and overwriting files already present. File modes are preserved so
// module hook scripts stay executable.
func CopyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dest string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
