// Package turn implements the Turn Controller (C8): a per-Session state
// machine over Listening/UserTurn/ThinkingPause/Clarifying/AssistantTurn/
// Interrupted/Ended (spec.md §4.7), grounded on lookatitude-beluga-ai's
// AgentState + IsValidTransition table idiom (pkg/voice/session/internal).
package turn

import (
	"fmt"
	"sync"
	"time"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/event"
)

// State is one state of the per-Session Turn Controller state machine
// (spec.md §4.7).
type State string

const (
	StateListening    State = "listening"
	StateUserTurn     State = "user_turn"
	StateThinkingPause State = "thinking_pause"
	StateClarifying   State = "clarifying"
	StateAssistantTurn State = "assistant_turn"
	StateInterrupted  State = "interrupted"
	StateEnded        State = "ended"
)

// validTransitions is the closed transition table (spec.md §4.7: "all
// others are errors"). ThinkingPause->UserTurn (speech resumes before the
// end-of-turn pause elapses) and AssistantTurn->Listening (the assistant
// Turn completes without an interruption) are not named explicitly in the
// spec's "selected" list but are required for the machine to be total; they
// are added here in the same spirit as the named transitions.
var validTransitions = map[State]map[State]bool{
	StateListening: {
		StateUserTurn: true,
		StateEnded:    true,
	},
	StateUserTurn: {
		StateThinkingPause: true,
		StateClarifying:    true,
		StateAssistantTurn: true,
		StateEnded:         true,
	},
	StateThinkingPause: {
		StateUserTurn:      true,
		StateClarifying:    true,
		StateAssistantTurn: true,
		StateEnded:         true,
	},
	StateClarifying: {
		StateListening: true,
		StateEnded:     true,
	},
	StateAssistantTurn: {
		StateInterrupted: true,
		StateListening:   true,
		StateEnded:       true,
	},
	StateInterrupted: {
		StateListening: true,
		StateEnded:     true,
	},
	StateEnded: {},
}

// IsValidTransition reports whether moving from one state to another is
// allowed by the table above.
func IsValidTransition(from, to State) bool {
	return validTransitions[from][to]
}

// Controller is the Turn Controller (C8) for one Session.
type Controller struct {
	mu     sync.Mutex
	callID string
	state  State
	cfg    config.TurnConfig
	bus    event.EventBus

	currentTurnID string
}

// New builds a Controller starting in Listening.
func New(callID string, cfg config.TurnConfig, bus event.EventBus) *Controller {
	return &Controller{callID: callID, state: StateListening, cfg: cfg, bus: bus}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition validates and applies a state change, returning an error for
// any transition not in the table (spec.md §4.7: "all others are errors").
func (c *Controller) transition(to State) error {
	if !IsValidTransition(c.state, to) {
		return fmt.Errorf("turn: invalid transition %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

func (c *Controller) publish(t event.EventType, data *event.TurnEventData) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(t, c.callID, data)
}

// OnSpeechFrame handles Listening's first-speech-frame transition into
// UserTurn (spec.md §4.7).
func (c *Controller) OnSpeechFrame(turnID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateListening {
		return nil
	}
	if err := c.transition(StateUserTurn); err != nil {
		return err
	}
	c.currentTurnID = turnID
	c.publish(event.TurnUserStarted, &event.TurnEventData{TurnID: turnID, Role: "user"})
	return nil
}

// IsThinkingPause reports whether a pause of pauseMs, with the prosody
// service's is_thinking_pause heuristic, qualifies as a thinking pause
// rather than an end of turn (spec.md §4.7: "pause >= 800ms and < 2500ms
// with high is_thinking_pause heuristic").
func (c *Controller) IsThinkingPause(pauseMs int, heuristic bool) bool {
	return heuristic && pauseMs >= c.cfg.ThinkingPauseMinMs && pauseMs < c.cfg.ThinkingPauseMaxMs
}

// OnThinkingPause transitions UserTurn (or an already-active ThinkingPause)
// into ThinkingPause. The caller is expected to have already checked
// IsThinkingPause and to keep withholding STT dispatch.
func (c *Controller) OnThinkingPause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateThinkingPause {
		return nil
	}
	if err := c.transition(StateThinkingPause); err != nil {
		return err
	}
	c.publish(event.TurnThinkingPause, &event.TurnEventData{TurnID: c.currentTurnID, Role: "user"})
	return nil
}

// OnSpeechResumed moves a ThinkingPause back to UserTurn when the caller
// keeps speaking before the end-of-turn pause elapses.
func (c *Controller) OnSpeechResumed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateThinkingPause {
		return nil
	}
	return c.transition(StateUserTurn)
}

// EndOfTurnPause returns the pause duration that ends a user Turn, shortened
// for questions (spec.md §4.7: "default 1500ms, shortened to 600ms if
// prosody is_question").
func (c *Controller) EndOfTurnPause(isQuestion bool) time.Duration {
	ms := c.cfg.EndOfTurnPauseMs
	if isQuestion {
		ms = c.cfg.EndOfTurnPauseQuestionMs
	}
	return time.Duration(ms) * time.Millisecond
}

// IsEndOfTurn reports whether pauseMs has reached the applicable
// end-of-turn threshold.
func (c *Controller) IsEndOfTurn(pauseMs int, isQuestion bool) bool {
	return time.Duration(pauseMs)*time.Millisecond >= c.EndOfTurnPause(isQuestion)
}

// OnEndOfTurn marks the user Turn complete (STT has been dispatched by the
// caller). It does not itself decide the next state: call OnClarification or
// OnAssistantTurnStart once C6's verdict is known (spec.md §4.7).
func (c *Controller) OnEndOfTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(event.TurnUserCompleted, &event.TurnEventData{TurnID: c.currentTurnID, Role: "user"})
}

// OnClarification moves to Clarifying: the clarification prompt is
// synthesized but the dialogue engine is never fed the user's text (spec.md
// §4.7).
func (c *Controller) OnClarification(prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transition(StateClarifying); err != nil {
		return err
	}
	c.publish(event.TurnClarifying, &event.TurnEventData{TurnID: c.currentTurnID, Role: "assistant", Text: prompt})
	return nil
}

// ResolveClarification moves Clarifying back to Listening once the
// clarification prompt has been played out (spec.md §4.7: "-> back to
// Listening").
func (c *Controller) ResolveClarification() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(StateListening)
}

// OnAssistantTurnStart moves UserTurn/ThinkingPause into AssistantTurn once
// C6 found no clarification need.
func (c *Controller) OnAssistantTurnStart(turnID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transition(StateAssistantTurn); err != nil {
		return err
	}
	c.currentTurnID = turnID
	c.publish(event.TurnAssistantStarted, &event.TurnEventData{TurnID: turnID, Role: "assistant"})
	return nil
}

// OnAssistantTurnEnd moves AssistantTurn back to Listening once playback
// completes without interruption.
func (c *Controller) OnAssistantTurnEnd() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transition(StateListening); err != nil {
		return err
	}
	c.publish(event.TurnAssistantEnded, &event.TurnEventData{TurnID: c.currentTurnID, Role: "assistant"})
	return nil
}

// OnInterruption moves AssistantTurn into Interrupted (spec.md §4.7:
// "cancel in-flight LLM and TTS, flush playback"). The caller performs the
// cancellation and flush; this only records the state change.
func (c *Controller) OnInterruption() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transition(StateInterrupted); err != nil {
		return err
	}
	c.publish(event.TurnInterrupted, &event.TurnEventData{TurnID: c.currentTurnID, Role: "assistant"})
	return nil
}

// OnInterruptionHandled moves Interrupted back to Listening once cancellation
// and playback flush have completed (spec.md §4.7: "-> Listening").
func (c *Controller) OnInterruptionHandled() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transition(StateListening)
}

// ResolveTieBreak implements spec.md §4.7's "if both a clarification and an
// interruption fire in the same tick, interruption wins." Callers that
// observe both signals in one tick should act on interruption and discard
// the clarification.
func ResolveTieBreak(clarificationFired, interruptionFired bool) (takeInterruption bool) {
	return interruptionFired
}

// OnBridgeClosed moves any state to Ended (spec.md §4.7: "Any + bridge
// closed -> Ended").
func (c *Controller) OnBridgeClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEnded {
		return nil
	}
	return c.transition(StateEnded)
}
