package workload

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanwang67/file_lock_service/client"
	"github.com/alanwang67/file_lock_service/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsDeterministic(t *testing.T) {
	g := New()
	g.Seed = 7

	first := g.Generate()
	second := g.Generate()
	assert.Equal(t, first, second)
}

func TestGeneratedLinesParse(t *testing.T) {
	g := New()
	g.Seed = 3
	g.Operations = 200
	g.FailPercentage = 0.1

	lines := g.Generate()
	require.NotEmpty(t, lines)

	opens, fails := 0, 0
	for _, line := range lines {
		if line == client.FailCommand {
			fails++
			continue
		}
		cmd, err := server.ParseCommand(line)
		require.NoError(t, err, line)
		if cmd.Name == server.CmdOpen {
			opens++
			assert.True(t, strings.HasPrefix(cmd.FileName, "file"))
		}
	}
	assert.Equal(t, g.Operations, opens)
	assert.Equal(t, len(lines), opens*4+fails)
}

func TestGenerateWithoutFailures(t *testing.T) {
	g := New()
	g.Seed = 11
	g.FailPercentage = 0

	assert.NotContains(t, g.Generate(), client.FailCommand)
}

func TestSingleFile(t *testing.T) {
	g := New()
	g.Seed = 5
	g.Files = 1
	g.FailPercentage = 0

	for _, line := range g.Generate() {
		assert.Equal(t, "file0", strings.Fields(line)[1])
	}
}

func TestWriteScriptRoundTrip(t *testing.T) {
	g := New()
	g.Seed = 9
	g.Operations = 10
	lines := g.Generate()

	path := filepath.Join(t.TempDir(), "script.cmd")
	require.NoError(t, WriteScript(lines, path))

	loaded, err := client.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, lines, loaded)
}
