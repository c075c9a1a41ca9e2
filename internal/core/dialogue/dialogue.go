// Package dialogue implements the Dialogue Engine Adapter (C9): a streamed
// request to the core's external LLM service, sentence-boundary chunking for
// the TTS Streamer (C10), and dispatch of a closed tool catalog (spec.md
// §4.8). The SSE consumption loop (bufio.Scanner over resp.Body, field:value
// line parsing, blank-line dispatch) is grounded on lookatitude-beluga-ai's
// internal/httpclient.StreamSSE, adapted from its iter.Seq2 shape to this
// module's callback style to match the rest of the core's adapters (C5's
// Adapter.Submit, C3's Gateway.Process).
package dialogue

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/event"
)

// Message is one turn of the rolling conversation memory.
type Message struct {
	Role string // "system" | "user" | "assistant"
	Text string
}

// ToolCall is one invocation record the stream interleaves with tokens
// (spec.md §4.8: "{name, arguments}").
type ToolCall struct {
	Name      string
	Arguments string
}

// Request is one Dialogue Engine invocation.
type Request struct {
	CallID         string
	SystemPrompt   string
	ContextFlags   map[string]bool
	History        []Message // already bounded to max_context_turns pairs
	UserUtterance  string
	Tools          []map[string]interface{}
}

// ChunkFunc receives one sentence-boundary chunk ready for TTS.
type ChunkFunc func(text string)

// ToolCallFunc receives one tool invocation's result once executed.
type ToolCallFunc func(call ToolCall, result string, err error)

// Engine is the Dialogue Engine Adapter (C9).
type Engine struct {
	client  *http.Client
	baseURL string
	cfg     config.DialogueConfig
	bus     event.EventBus
	tools   *Registry
}

// New builds an Engine bound to the external LLM service's base URL.
func New(cfg config.DialogueConfig, baseURL string, tools *Registry, bus event.EventBus) *Engine {
	return &Engine{client: &http.Client{}, baseURL: baseURL, cfg: cfg, bus: bus, tools: tools}
}

// BoundedHistory drops the oldest user/assistant pairs until at most
// maxPairs pairs remain (spec.md §4.8: "bounded by max_context_turns,
// default 10, dropping oldest user/assistant pairs").
func BoundedHistory(history []Message, maxPairs int) []Message {
	maxMessages := maxPairs * 2
	if len(history) <= maxMessages {
		return history
	}
	return history[len(history)-maxMessages:]
}

type wireRequest struct {
	SystemPrompt string                   `json:"system_prompt"`
	ContextFlags map[string]bool          `json:"context_flags,omitempty"`
	History      []wireMessage            `json:"history"`
	Utterance    string                   `json:"utterance"`
	Tools        []map[string]interface{} `json:"tools,omitempty"`
}

type wireMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// wireEvent is the streamed event shape the core's own POST /chat/stream
// SSE endpoint emits per data: line.
type wireEvent struct {
	Type      string `json:"type"` // "token" | "tool_call" | "done" | "error"
	Text      string `json:"text,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Stream issues the request, chunking tokens at sentence boundaries for
// onChunk and dispatching tool calls through the Registry as they arrive
// (spec.md §4.8). Returns once the stream ends, is cancelled via ctx, or
// errors.
func (e *Engine) Stream(ctx context.Context, req Request, onChunk ChunkFunc, onToolCall ToolCallFunc) error {
	wr := wireRequest{
		SystemPrompt: req.SystemPrompt,
		ContextFlags: req.ContextFlags,
		Utterance:    req.UserUtterance,
		Tools:        req.Tools,
	}
	for _, m := range req.History {
		wr.History = append(wr.History, wireMessage{Role: m.Role, Text: m.Text})
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return fmt.Errorf("dialogue: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dialogue: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dialogue: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dialogue: unexpected status %d", resp.StatusCode)
	}

	chunker := newSentenceChunker(e.cfg.MinChunkWords)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataBuf strings.Builder
	dispatch := func() error {
		if dataBuf.Len() == 0 {
			return nil
		}
		line := dataBuf.String()
		dataBuf.Reset()

		var ev wireEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("dialogue: decode event: %w", err)
		}

		switch ev.Type {
		case "token":
			for _, chunk := range chunker.feed(ev.Text) {
				onChunk(chunk)
			}
		case "tool_call":
			var result string
			var execErr error
			if e.tools != nil {
				result, execErr = e.tools.Execute(ev.ToolName, ev.Arguments)
			}
			if onToolCall != nil {
				onToolCall(ToolCall{Name: ev.ToolName, Arguments: ev.Arguments}, result, execErr)
			}
			e.publish(req.CallID, event.DialogueToolCall, map[string]string{"tool": ev.ToolName})
		case "error":
			return fmt.Errorf("dialogue: stream error: %s", ev.Message)
		}
		return nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(value)
		}
	}
	if err := dispatch(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("dialogue: scan stream: %w", err)
	}

	if remainder := chunker.flush(); remainder != "" {
		onChunk(remainder)
	}
	e.publish(req.CallID, event.DialogueChunkReady, nil)
	return nil
}

func (e *Engine) publish(callID string, t event.EventType, data interface{}) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(t, callID, data)
}

// sentenceBoundary is the closed set of characters that end a sentence
// chunk for TTS (spec.md §4.8: "{., !, ?, ;, newline}").
var sentenceBoundary = map[rune]bool{'.': true, '!': true, '?': true, ';': true, '\n': true}

type sentenceChunker struct {
	minWords int
	buf      strings.Builder
}

func newSentenceChunker(minWords int) *sentenceChunker {
	if minWords <= 0 {
		minWords = 3
	}
	return &sentenceChunker{minWords: minWords}
}

// feed appends text and returns any complete chunks it produces. A boundary
// character flushes the buffer only if it has reached minWords, avoiding
// "pathologically short syntheses" (spec.md §4.8).
func (c *sentenceChunker) feed(text string) []string {
	var chunks []string
	for _, r := range text {
		c.buf.WriteRune(r)
		if sentenceBoundary[r] && wordCount(c.buf.String()) >= c.minWords {
			chunks = append(chunks, strings.TrimSpace(c.buf.String()))
			c.buf.Reset()
		}
	}
	return chunks
}

// flush returns and clears whatever remains in the buffer once the stream
// ends, regardless of the minimum word count.
func (c *sentenceChunker) flush() string {
	remainder := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	return remainder
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
