// Package datadir prepares PostgreSQL data directories: a template produced
// once by initdb, and per-instance copies made from it.
package datadir

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// VersionFile marks the root of an initialized data directory
const VersionFile = "PG_VERSION"

// SuperUser is the bootstrap superuser created by initdb
const SuperUser = "postgres"

var (
	// ErrInvalidDataDirectory is returned when VersionFile is missing
	ErrInvalidDataDirectory = errors.New("not a valid data directory")

	// ErrSourceNotFound is returned when the copy source cannot be read
	ErrSourceNotFound = errors.New("source directory not readable")

	// ErrTemplateNotEmpty is returned when initdb would run over existing files
	ErrTemplateNotEmpty = errors.New("template directory is not empty")
)

// Executor runs a command to completion
type Executor interface {
	Execute(ctx context.Context, c procmgr.Command) (string, error)
}

var lookPath = exec.LookPath

// InitTemplate runs initdb into dir, which must exist and be empty.
// Errors from the executor are returned unwrapped for classification.
func InitTemplate(ctx context.Context, runner Executor, initdb, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template directory: %w", err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%w: %s", ErrTemplateNotEmpty, dir)
	}

	_, err = runner.Execute(ctx, procmgr.Command{
		Path: initdb,
		Args: []string{"--username=" + SuperUser},
		Env:  []string{"PGDATA=" + dir},
	})
	return err
}

// Materialize copies every top-level entry of src into the existing dst and
// gives dst the permission bits of src. The system cp is used when present
// so copy-on-write filesystems can share blocks; otherwise the tree is
// copied in process. A failed copy leaves dst partially populated.
func Materialize(ctx context.Context, runner Executor, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}

	if cp, err := lookPath("cp"); err == nil {
		if len(entries) > 0 {
			args := copyFlags()
			for _, e := range entries {
				args = append(args, filepath.Join(src, e.Name()))
			}
			args = append(args, dst)

			if _, err := runner.Execute(ctx, procmgr.Command{Path: cp, Args: args}); err != nil {
				return err
			}
		}
	} else if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("set permissions on %s: %w", dst, err)
	}
	return nil
}

// copyFlags selects reflink-capable flags for the platform's cp
func copyFlags() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"-R", "--reflink=auto"}
	case "darwin":
		return []string{"-R", "-c"}
	default:
		return []string{"-R"}
	}
}

// copyTree recreates src under dst, keeping file modes and symlinks.
// Entries that are neither regular files, directories nor symlinks are skipped.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.IsDir():
			if err := os.MkdirAll(target, 0o700); err != nil {
				return err
			}
			return os.Chmod(target, info.Mode().Perm())
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// VerifyVersion checks that dir looks like an initialized data directory
func VerifyVersion(dir string) error {
	info, err := os.Stat(filepath.Join(dir, VersionFile))
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s has no %s", ErrInvalidDataDirectory, dir, VersionFile)
	}
	return nil
}

// ReadVersion returns the major version recorded in dir
func ReadVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, VersionFile))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDataDirectory, err)
	}
	return strings.TrimSpace(string(data)), nil
}
