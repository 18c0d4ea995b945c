package pgtemp

import (
	"os"
	"sync"
)

// sharedDir is a reference-counted directory. The creator holds the first
// reference; the directory is removed when the last one is released.
type sharedDir struct {
	path string

	mu   sync.Mutex
	refs int
}

func newSharedDir(path string) *sharedDir {
	return &sharedDir{path: path, refs: 1}
}

func (d *sharedDir) acquire() *sharedDir {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs++
	return d
}

func (d *sharedDir) release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refs == 0 {
		return nil
	}
	d.refs--
	if d.refs > 0 {
		return nil
	}
	return os.RemoveAll(d.path)
}

func (d *sharedDir) references() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refs
}
