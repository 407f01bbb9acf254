package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tcs := map[string]struct {
		template string
		args     []string
		want     string
	}{
		"single placeholder":     {"convert %s", []string{"/tmp/a.jpg"}, "convert /tmp/a.jpg"},
		"ordered placeholders":   {"grain-tool -o %s -g %s", []string{"out.jpg", "40"}, "grain-tool -o out.jpg -g 40"},
		"extra args ignored":     {"echo %s", []string{"a", "b"}, "echo a"},
		"missing args keep tail": {"cp %s %s", []string{"a"}, "cp a %s"},
		"other verbs untouched":  {"identify -format %wx%h %s", []string{"in.jpg"}, "identify -format %wx%h in.jpg"},
		"no placeholders":        {"true", nil, "true"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Expand(tc.template, tc.args...))
		})
	}
}

func TestExpandAll(t *testing.T) {
	assert.Equal(t, "mv a.tmp a", ExpandAll("mv %s.tmp %s", "a"))
	assert.Equal(t, "true", ExpandAll("true", "x"))
}

func TestRunnerExitCodes(t *testing.T) {
	r := NewRunner("")

	tcs := map[string]struct {
		commandLine string
		wantExit    int
	}{
		"success":       {"true", 0},
		"failure":       {"false", 1},
		"explicit code": {"exit 3", 3},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			exit, _, err := r.Run(context.Background(), tc.commandLine)
			require.NoError(t, err)
			assert.Equal(t, tc.wantExit, exit)
		})
	}
}

func TestRunnerCapturesOutput(t *testing.T) {
	r := NewRunner("")

	exit, out, err := r.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, exit)
	assert.Contains(t, out, "hello")
}

func TestRunnerSpawnFailure(t *testing.T) {
	r := NewRunner("/nonexistent-shell")

	_, _, err := r.Run(context.Background(), "true")
	require.Error(t, err)
}
