// Package locator resolves the paths of PostgreSQL executables.
//
// Lookup order for Search.Locate:
//  1. the configured bin directory, when set
//  2. the PATH environment variable
//  3. the directory reported by `pg_config --bindir`
//  4. well-known installation directories, newest major version first
package locator

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrNotFound is returned when an executable cannot be located
var ErrNotFound = errors.New("executable not found")

// Locator resolves an executable name to an absolute path
type Locator interface {
	Locate(name string) (string, error)
}

// installGlobs are searched when PATH and pg_config come up empty.
var installGlobs = []string{
	"/usr/lib/postgresql/*/bin",
	"/usr/pgsql-*/bin",
	"/usr/local/pgsql/bin",
	"/opt/homebrew/opt/postgresql@*/bin",
	"/opt/homebrew/opt/postgresql/bin",
	"/usr/local/opt/postgresql@*/bin",
	"/usr/local/opt/postgresql/bin",
	"/Applications/Postgres.app/Contents/Versions/*/bin",
}

// Search locates executables on the local system
type Search struct {
	binDir string

	once       sync.Once
	candidates []string
}

// New creates a Search. A non-empty binDir is consulted before anything else.
func New(binDir string) *Search {
	return &Search{binDir: binDir}
}

// Locate returns the path of the named executable
func (s *Search) Locate(name string) (string, error) {
	if s.binDir != "" {
		if path, ok := executable(filepath.Join(s.binDir, name)); ok {
			return path, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return filepath.Abs(path)
	}

	s.once.Do(func() { s.candidates = candidateDirs() })
	for _, dir := range s.candidates {
		if path, ok := executable(filepath.Join(dir, name)); ok {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// candidateDirs lists the pg_config bindir followed by installation
// directories ordered by descending major version.
func candidateDirs() []string {
	var dirs []string

	if out, err := exec.Command("pg_config", "--bindir").Output(); err == nil {
		if dir := strings.TrimSpace(string(out)); dir != "" {
			dirs = append(dirs, dir)
		}
	}

	var found []string
	for _, pattern := range installGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		found = append(found, matches...)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return majorVersion(found[i]) > majorVersion(found[j])
	})

	return append(dirs, found...)
}

var versionPattern = regexp.MustCompile(`(\d+)(?:\.\d+)?`)

// majorVersion extracts the first version number in path, or 0
func majorVersion(path string) int {
	m := versionPattern.FindStringSubmatch(path)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

func executable(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
		return "", false
	}
	return path, true
}

// Static is a fixed name to path mapping
type Static map[string]string

// Locate returns the configured path for name
func (s Static) Locate(name string) (string, error) {
	if path, ok := s[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

var (
	_ Locator = (*Search)(nil)
	_ Locator = Static(nil)
)
