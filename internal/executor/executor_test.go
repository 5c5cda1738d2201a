package executor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripParentRuntimeEnv_RemovesClaudecodeVar(t *testing.T) {
	env := []string{"PATH=/usr/bin", "CLAUDECODE=1", "HOME=/root"}
	out := stripParentRuntimeEnv(env)
	for _, kv := range out {
		assert.NotContains(t, kv, "CLAUDECODE=")
	}
	assert.Len(t, out, 2)
}

func TestCandidateLocations_NonEmpty(t *testing.T) {
	locs := candidateLocations()
	assert.NotEmpty(t, locs)
}

func TestRun_SynthesizesFailedResultWhenCLIUnresolvable(t *testing.T) {
	// In the test sandbox the AI CLI binary is never installed, so
	// resolution must fail and Run must fold that into a Result rather
	// than panicking or returning a Go error.
	if _, err := resolveCLI(); err == nil {
		t.Skip("a claude CLI happens to be resolvable in this environment")
	}
	result := Run(context.Background(), "hello", Options{})
	assert.Equal(t, 1, result.ExitCode)
	assert.NotEmpty(t, result.Stderr)
}

func TestTerminateOnTimeout_ReturnsOnChildExit(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())

	err := terminateOnTimeout(context.Background(), cmd)
	assert.NoError(t, err)
}

func TestTerminateOnTimeout_TerminatesChildPastDeadline(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := terminateOnTimeout(ctx, cmd)
	assert.Error(t, err)
	// SIGTERM lands well inside the grace window; the child must not run
	// anywhere near its full 30s.
	assert.Less(t, time.Since(start), 10*time.Second)
}
