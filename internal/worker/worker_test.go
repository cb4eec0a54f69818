package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestSubprocessRunner_NoOutput(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	runner := SubprocessRunner(script, "")
	_, err := runner(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

func TestSubprocessRunner_ParsesLastStdoutLine(t *testing.T) {
	script := writeScript(t, `echo noise
echo '{"chunks":12,"duration_ms":30}'
`)
	runner := SubprocessRunner(script, "")
	result, err := runner(context.Background(), nil)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, float64(12), decoded["chunks"])
}

func TestSubprocessRunner_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo '{"ok":true}'
echo "boom" 1>&2
exit 1
`)
	runner := SubprocessRunner(script, "")
	_, err := runner(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSubprocessRunner_NonJSONOutput(t *testing.T) {
	script := writeScript(t, `echo "not json"
`)
	runner := SubprocessRunner(script, "")
	_, err := runner(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JSON object")
}

func TestSubprocessRunner_PassesPayloadFlag(t *testing.T) {
	script := writeScript(t, `echo "$@" > args.txt
echo '{"ok":true}'
`)
	workDir := t.TempDir()
	runner := SubprocessRunner(script, workDir)
	payload := json.RawMessage(`{"source_dir":"/tmp/docs"}`)
	_, err := runner(context.Background(), payload)
	require.NoError(t, err)

	args, err := os.ReadFile(filepath.Join(workDir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, `--payload-json {"source_dir":"/tmp/docs"}`, strings.TrimSpace(string(args)))
}
