package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sagalog/internal/saga"
	"github.com/roach88/sagalog/internal/store"
)

func TestRunCompletes(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sagalog.db")

	out, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "Saga order-1 completed\n  tracking: trk-order-1\n", out)

	out, _, err = execute(t, "instances", "--backend", "sqlite", "--db", db)
	require.NoError(t, err)
	assert.Regexp(t, `order-1/0\s+succeeded`, out)
	assert.Regexp(t, `order-1/1\s+succeeded`, out)
	assert.Regexp(t, `order-1/2\s+succeeded`, out)
}

func TestRunFailureCompensates(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sagalog.db")

	out, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-2", "--fail-at", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Saga order-2 failed: carrier_unavailable: no carrier for order order-2")
	assert.Contains(t, out, "  compensated: refund pay-order-2\n  compensated: release rsv-order-2\n")
	assert.Contains(t, out, "Error [E_SAGA_FAILED]: saga failed")

	out, _, err = execute(t, "history", "order-2/2", "--backend", "sqlite", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"success":false`)
}

func TestRunReplaysRecordedSaga(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sagalog.db")

	first, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-3", "--format", "json")
	require.NoError(t, err)

	// The failure flag is ignored: every step replays its recorded success.
	second, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-3", "--fail-at", "1", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, first, second)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(second), &resp))
	assert.Equal(t, "completed", resp.Data.Status)
	assert.Equal(t, map[string]any{
		"tracking":    "trk-order-3",
		"reservation": "rsv-order-3",
		"payment":     "pay-order-3",
	}, resp.Data.Result)
}

func TestRunReplaysRecordedFailure(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sagalog.db")

	out, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-4", "--fail-at", "2")
	require.Error(t, err)
	assert.Contains(t, out, "  compensated: release rsv-order-4\n")

	out, _, err = execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-4", "--format", "json")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "failed", resp.Data.Status)
	assert.Equal(t, "declined: card declined for order order-4", resp.Data.Error)
	assert.Equal(t, []string{"release rsv-order-4"}, resp.Data.Compensated)
	assert.True(t, resp.Data.CompensationReplayed)
}

func TestRunCompensatesOnlyOnce(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sagalog.db")

	for range 3 {
		_, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-5", "--fail-at", "3")
		require.Error(t, err)
	}

	out, _, err := execute(t, "run", "--backend", "sqlite", "--db", db, "--saga", "order-5")
	require.Error(t, err)
	assert.Contains(t, out, "  compensated earlier: refund pay-order-5\n  compensated earlier: release rsv-order-5\n")
	assert.NotContains(t, out, "  compensated: ")

	out, _, err = execute(t, "history", "order-5/compensation", "--backend", "sqlite", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"type":"precall"`)
	assert.Contains(t, out, `"ret":["refund pay-order-5","release rsv-order-5"]`)

	out, _, err = execute(t, "verify", "--backend", "sqlite", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "0 invalid")
}

func TestRunGeneratedSagaID(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Repository: store.NewMemory()}
	cmd := newRunCommand(&RunOptions{RootOptions: rootOpts, IDGenerator: saga.NewFixedGenerator("fixed-1")})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "Saga fixed-1 completed")

	ids, err := rootOpts.Repository.Instances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed-1/0", "fixed-1/1", "fixed-1/2"}, ids)
}

func TestRunMetrics(t *testing.T) {
	_, errOut, err := execute(t, "run", "--backend", "memory", "--saga", "m-1", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, errOut, `sagalog_sagas_total{outcome="success"} 1`)
	assert.Contains(t, errOut, `sagalog_steps_total{outcome="success",path="fresh"} 3`)
}

func TestRunInvalidFailAt(t *testing.T) {
	_, _, err := execute(t, "run", "--backend", "memory", "--fail-at", "4")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
