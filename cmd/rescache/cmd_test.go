package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBoltRoundTrip(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cache.db")
	base := []string{"--driver", "bolt", "--bolt-path", db, "--prefix", "cli:"}

	out, err := run(t, append(base, "probe")...)
	require.NoError(t, err)
	assert.Equal(t, "ok technology=bolt\n", out)

	_, err = run(t, append(base, "set", "post:1", `{"title":"A"}`)...)
	require.NoError(t, err)

	out, err = run(t, append(base, "get", "post:1")...)
	require.NoError(t, err)
	assert.Equal(t, "json\t{\"title\":\"A\"}\n", out)

	out, err = run(t, append(base, "get", "nope")...)
	require.NoError(t, err)
	assert.Equal(t, "(miss)\n", out)

	_, err = run(t, append(base, "set", "empty", `[]`)...)
	require.NoError(t, err)
	out, err = run(t, append(base, "get", "empty")...)
	require.NoError(t, err)
	assert.Equal(t, "(negative)\n", out)

	out, err = run(t, append(base, "incr", "hits", "5")...)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	out, err = run(t, append(base, "clear", "post:*")...)
	require.NoError(t, err)
	assert.Equal(t, "deleted 1\n", out)

	out, err = run(t, append(base, "del", "hits")...)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestClearAllNeedsOverride(t *testing.T) {
	mr := miniredis.RunT(t)
	base := []string{"--driver", "redis", "--redis", mr.Addr()}
	mr.Set("a", "1")

	_, err := run(t, append(base, "clear", "*")...)
	require.Error(t, err)
	assert.True(t, mr.Exists("a"))

	out, err := run(t, append(base, "clear", "*", "--allow-all")...)
	require.NoError(t, err)
	assert.Equal(t, "deleted 1\n", out)
	assert.False(t, mr.Exists("a"))
}

func TestProbeFailsFastWhenStrict(t *testing.T) {
	_, err := run(t, "--driver", "redis", "--redis", "127.0.0.1:1", "probe")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "probe"))
}
