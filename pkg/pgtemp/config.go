package pgtemp

import (
	"fmt"
	"strings"
)

// DefaultSharedBuffers is the shared_buffers setting for new instances
const DefaultSharedBuffers int64 = 12 * 1024 * 1024

// BuildConfig renders the postgresql.conf for an instance. The server
// listens only on a UNIX socket in socketDir. sharedBuffers is written in
// whole kB, so any remainder below 1kB is dropped.
func BuildConfig(socketDir string, sharedBuffers int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "shared_buffers = '%s'\n", formatSize(sharedBuffers))
	b.WriteString("listen_addresses = ''\n")
	fmt.Fprintf(&b, "unix_socket_directories = '%s'\n", quoteValue(socketDir))
	return b.String()
}

// quoteValue escapes a value for a single-quoted configuration string
func quoteValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// formatSize renders bytes in the largest unit postgres accepts that
// represents the value exactly. Sizes below 1kB round up to 1kB; other
// sizes round down to whole kB.
func formatSize(bytes int64) string {
	const (
		kB = 1024
		mB = 1024 * kB
		gB = 1024 * mB
	)

	switch {
	case bytes >= gB && bytes%gB == 0:
		return fmt.Sprintf("%dGB", bytes/gB)
	case bytes >= mB && bytes%mB == 0:
		return fmt.Sprintf("%dMB", bytes/mB)
	case bytes < kB:
		return "1kB"
	default:
		return fmt.Sprintf("%dkB", bytes/kB)
	}
}
