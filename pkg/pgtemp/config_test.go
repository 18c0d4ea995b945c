package pgtemp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildConfig(t *testing.T) {
	got := BuildConfig("/tmp/pgtemp-sock-1234", DefaultSharedBuffers)

	want := "shared_buffers = '12MB'\n" +
		"listen_addresses = ''\n" +
		"unix_socket_directories = '/tmp/pgtemp-sock-1234'\n"
	assert.Equal(t, want, got)
}

func TestBuildConfig_QuotesSocketDir(t *testing.T) {
	got := BuildConfig("/tmp/it's here", DefaultSharedBuffers)
	assert.Contains(t, got, "unix_socket_directories = '/tmp/it''s here'\n")
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{12 * 1024 * 1024, "12MB"},
		{128 * 1024 * 1024, "128MB"},
		{2 * 1024 * 1024 * 1024, "2GB"},
		{1536 * 1024, "1536kB"},
		{8192, "8kB"},
		{100, "1kB"},
		{1536, "1kB"},
		{8*1024 + 1, "8kB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}
