package profiles

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfileFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMergesWithBuiltins(t *testing.T) {
	path := writeProfileFile(t, `
profiles:
  - name: internal
    description: internal estate sweep
    workers: 5
    task_timeout: 10s
    ports: [22, 443, 8443]
    permutations: true
`)

	loaded, err := Load(path)
	require.NoError(t, err)

	p, ok := loaded["internal"]
	require.True(t, ok)
	assert.Equal(t, 5, p.Workers)
	assert.Equal(t, 10*time.Second, p.TaskTimeout)
	assert.Equal(t, []int{22, 443, 8443}, p.Ports)
	assert.True(t, p.Permutations)

	_, ok = loaded["quick"]
	assert.True(t, ok, "builtins remain available")
}

func TestLoadShadowsBuiltin(t *testing.T) {
	path := writeProfileFile(t, `
profiles:
  - name: quick
    workers: 50
`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, loaded["quick"].Workers)
}

func TestLoadRejectsBadProfiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "profiles:\n  - workers: 3\n"},
		{"port out of range", "profiles:\n  - name: bad\n    ports: [99999]\n"},
		{"negative workers", "profiles:\n  - name: bad\n    workers: -1\n"},
		{"invalid yaml", "profiles: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeProfileFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestResolveBuiltin(t *testing.T) {
	p, err := Resolve("thorough", "")
	require.NoError(t, err)
	assert.True(t, p.FullRange)
	assert.True(t, p.Permutations)

	_, err = Resolve("nonexistent", "")
	assert.Error(t, err)
}
