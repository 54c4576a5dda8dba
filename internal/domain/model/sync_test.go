package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncResult_RetryAfterInSeconds(t *testing.T) {
	res := SyncResult{RunID: "run-1", AccountID: 7}
	res.Fail(&ServiceUnavailableError{Op: "list commits", RetryAfter: 89500 * time.Millisecond, Err: errors.New("rate limited")})

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(90), raw["retry_after_seconds"])
	assert.NotContains(t, raw, "retry_after")
	assert.Equal(t, "run-1", raw["run_id"])
	assert.Equal(t, string(KindServiceUnavailable), raw["error_kind"])

	var back SyncResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 90*time.Second, back.RetryAfter)
	assert.Equal(t, KindServiceUnavailable, back.ErrorKind)
	assert.Equal(t, int64(7), back.AccountID)
}

func TestSyncResult_RetryAfterOmittedWhenZero(t *testing.T) {
	data, err := json.Marshal(SyncResult{RunID: "run-2", Success: true})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "retry_after")

	status := SyncStatus{AccountID: 1, Phase: SyncIdle, LastResult: &SyncResult{RetryAfter: 2 * time.Second}}
	data, err = json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"retry_after_seconds":2`)
}
