package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAccumulator(t *testing.T) {
	t.Run("full conversation stream", func(t *testing.T) {
		acc := newStreamAccumulator()
		lines := []string{
			`{"type":"system","subtype":"init","session_id":"11111111-1111-1111-1111-111111111111"}`,
			`{"type":"assistant","message":{"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","name":"Bash"}]}}`,
			`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash"},{"type":"tool_use","name":"Read"}]}}`,
			`{"type":"result","subtype":"success","is_error":false,"result":"All done.","duration_ms":4200,"duration_api_ms":3100,"total_cost_usd":0.0123,"num_turns":3,"session_id":"11111111-1111-1111-1111-111111111111","usage":{"input_tokens":1200,"output_tokens":340}}`,
		}
		for _, line := range lines {
			require.NoError(t, acc.consume([]byte(line)))
		}

		res, err := acc.finish()
		require.NoError(t, err)
		assert.Equal(t, "All done.", res.Text)
		assert.Equal(t, "11111111-1111-1111-1111-111111111111", res.SessionID)
		assert.False(t, res.IsError)
		assert.Equal(t, int64(4200), res.DurationMs)
		assert.Equal(t, int64(3100), res.DurationAPIMs)
		assert.Equal(t, 0.0123, res.TotalCostUSD)
		assert.Equal(t, 3, res.NumTurns)
		assert.Equal(t, int64(1200), res.Usage.InputTokens)
		assert.Equal(t, int64(340), res.Usage.OutputTokens)
		// Tool names are deduplicated, order preserved
		assert.Equal(t, []string{"Bash", "Read"}, res.ToolsUsed)
	})

	t.Run("falls back to accumulated text when result text is empty", func(t *testing.T) {
		acc := newStreamAccumulator()
		require.NoError(t, acc.consume([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"part one "}]}}`)))
		require.NoError(t, acc.consume([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"part two"}]}}`)))
		require.NoError(t, acc.consume([]byte(`{"type":"result","subtype":"success","session_id":"22222222-2222-2222-2222-222222222222"}`)))

		res, err := acc.finish()
		require.NoError(t, err)
		assert.Equal(t, "part one part two", res.Text)
	})

	t.Run("error result", func(t *testing.T) {
		acc := newStreamAccumulator()
		require.NoError(t, acc.consume([]byte(`{"type":"result","subtype":"error_max_turns","is_error":true,"result":"max turns reached","session_id":"33333333-3333-3333-3333-333333333333"}`)))

		res, err := acc.finish()
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, "error_max_turns", res.Subtype)
		assert.Equal(t, "max turns reached", res.Text)
	})

	t.Run("non JSON and blank lines are skipped", func(t *testing.T) {
		acc := newStreamAccumulator()
		require.NoError(t, acc.consume([]byte("")))
		require.NoError(t, acc.consume([]byte("warning: something unstructured")))
		require.NoError(t, acc.consume([]byte(`{"type":"result","subtype":"success","result":"ok","session_id":"44444444-4444-4444-4444-444444444444"}`)))

		res, err := acc.finish()
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Text)
	})

	t.Run("stream without result message", func(t *testing.T) {
		acc := newStreamAccumulator()
		require.NoError(t, acc.consume([]byte(`{"type":"system","subtype":"init","session_id":"55555555-5555-5555-5555-555555555555"}`)))

		_, err := acc.finish()
		assert.Error(t, err)
	})
}

func TestStderrTail(t *testing.T) {
	tail := newStderrTail(3)
	for _, line := range []string{"one", "two", "three", "four", "five"} {
		tail.Add(line)
	}
	assert.Equal(t, "three\nfour\nfive", tail.String())
}
