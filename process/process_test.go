package process

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_PassEnvVar(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{
		Command: `printf 'Hello %s!' "$SECRET"`,
		Env:     BuildEnv(os.Environ(), map[string]string{"SECRET": "World"}),
		Runs:    1,
		Stdout:  &out,
	}
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "Hello World!", out.String())
}

func TestRunner_PassJsonAsEnvVar(t *testing.T) {
	env, err := EnvFromConfig(`{"greeting_json": {"key": "it's a value"}}`)
	require.NoError(t, err)

	var out bytes.Buffer
	r := &Runner{Command: "printenv GREETING_JSON", Env: BuildEnv(os.Environ(), env), Runs: 1, Stdout: &out}
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, `{"key":"it's a value"}`, strings.TrimSpace(out.String()))
}

func TestRunner_RunsTwice(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{Command: "echo run", Runs: 2, Stdout: &out}
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, "run\nrun\n", out.String())
}

func TestRunner_FailedRunRestarts(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{Command: "echo attempt; exit 3", Runs: 2, Stdout: &out}
	err := r.Run(context.Background())

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Equal(t, "attempt\nattempt\n", out.String())
}

func TestRunner_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{Command: "sleep 10", Runs: -1, StopTimeout: time.Second}

	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunner_ForeverUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	r := &Runner{Command: "echo x; sleep 0.01", Runs: 0, Stdout: &out}

	time.AfterFunc(300*time.Millisecond, cancel)
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Greater(t, strings.Count(out.String(), "x"), 2)
}

func TestRunner_CancelKillsWholeGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	r := &Runner{
		Command:     `(trap "" TERM; exec sleep 5) & wait`,
		Runs:        1,
		StopTimeout: 200 * time.Millisecond,
		Stdout:      &out,
	}

	time.AfterFunc(300*time.Millisecond, cancel)
	start := time.Now()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}
