package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/config"
)

func testCfg() config.TurnConfig {
	return config.TurnConfig{
		EndOfTurnPauseMs:         1500,
		EndOfTurnPauseQuestionMs: 600,
		MinSilenceMs:             500,
		MaxSegmentDurationMs:     8000,
		ThinkingPauseMinMs:       800,
		ThinkingPauseMaxMs:       2500,
		MinSpeechMs:              250,
	}
}

func TestIsValidTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateListening, StateUserTurn, true},
		{StateListening, StateAssistantTurn, false},
		{StateUserTurn, StateThinkingPause, true},
		{StateUserTurn, StateClarifying, true},
		{StateUserTurn, StateAssistantTurn, true},
		{StateThinkingPause, StateUserTurn, true},
		{StateClarifying, StateListening, true},
		{StateClarifying, StateAssistantTurn, false},
		{StateAssistantTurn, StateInterrupted, true},
		{StateInterrupted, StateListening, true},
		{StateEnded, StateListening, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestControllerHappyPathToAssistantTurn(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	require.NoError(t, c.OnSpeechFrame("turn-1"))
	assert.Equal(t, StateUserTurn, c.State())

	c.OnEndOfTurn()
	require.NoError(t, c.OnAssistantTurnStart("turn-1"))
	assert.Equal(t, StateAssistantTurn, c.State())

	require.NoError(t, c.OnAssistantTurnEnd())
	assert.Equal(t, StateListening, c.State())
}

func TestControllerThinkingPauseThenResumedSpeech(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	require.NoError(t, c.OnSpeechFrame("turn-1"))

	assert.True(t, c.IsThinkingPause(1000, true))
	require.NoError(t, c.OnThinkingPause())
	assert.Equal(t, StateThinkingPause, c.State())

	require.NoError(t, c.OnSpeechResumed())
	assert.Equal(t, StateUserTurn, c.State())
}

func TestControllerClarificationPath(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	require.NoError(t, c.OnSpeechFrame("turn-1"))
	c.OnEndOfTurn()

	require.NoError(t, c.OnClarification("¿Dijiste 'cancelar'?"))
	assert.Equal(t, StateClarifying, c.State())

	require.NoError(t, c.ResolveClarification())
	assert.Equal(t, StateListening, c.State())
}

func TestControllerInterruptionPath(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	require.NoError(t, c.OnSpeechFrame("turn-1"))
	c.OnEndOfTurn()
	require.NoError(t, c.OnAssistantTurnStart("turn-1"))

	require.NoError(t, c.OnInterruption())
	assert.Equal(t, StateInterrupted, c.State())

	require.NoError(t, c.OnInterruptionHandled())
	assert.Equal(t, StateListening, c.State())
}

func TestControllerInvalidTransitionReturnsError(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	err := c.OnClarification("prompt")
	assert.Error(t, err, "clarifying directly from listening must be rejected")
	assert.Equal(t, StateListening, c.State())
}

func TestControllerBridgeClosedFromAnyState(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	require.NoError(t, c.OnSpeechFrame("turn-1"))
	require.NoError(t, c.OnBridgeClosed())
	assert.Equal(t, StateEnded, c.State())
	require.NoError(t, c.OnBridgeClosed(), "bridge-closed must be idempotent once already Ended")
}

func TestEndOfTurnPauseShortenedForQuestions(t *testing.T) {
	c := New("call-1", testCfg(), nil)
	assert.True(t, c.IsEndOfTurn(600, true))
	assert.False(t, c.IsEndOfTurn(600, false))
	assert.True(t, c.IsEndOfTurn(1500, false))
}

func TestResolveTieBreakPrefersInterruption(t *testing.T) {
	assert.True(t, ResolveTieBreak(true, true))
	assert.False(t, ResolveTieBreak(true, false))
	assert.True(t, ResolveTieBreak(false, true))
}
