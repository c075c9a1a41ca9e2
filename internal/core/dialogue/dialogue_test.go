package dialogue

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/config"
)

func testCfg() config.DialogueConfig {
	return config.DialogueConfig{MaxContextTurns: 10, MinChunkWords: 3}
}

func sseHandler(events []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}
}

func TestStreamEmitsSentenceBoundaryChunks(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"type":"token","text":"Hola, bienvenido a soporte. "}`,
		`{"type":"token","text":"Como puedo ayudarte hoy?"}`,
	}))
	defer srv.Close()

	e := New(testCfg(), srv.URL, NewRegistry(), nil)

	var chunks []string
	err := e.Stream(context.Background(), Request{CallID: "call-1", UserUtterance: "hola"},
		func(text string) { chunks = append(chunks, text) }, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Hola, bienvenido a soporte.", chunks[0])
	assert.Equal(t, "Como puedo ayudarte hoy?", chunks[1])
}

func TestStreamDispatchesToolCalls(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"type":"tool_call","tool_name":"get_account_balance","arguments":"{}"}`,
	}))
	defer srv.Close()

	registry := NewRegistry()
	registry.RegisterTool(&ToolDefinition{
		Name: ToolGetAccountBalance, Parameters: GetAccountBalanceSchema,
		Executor: func(string) (string, error) { return `{"balance":10}`, nil },
	})

	e := New(testCfg(), srv.URL, registry, nil)

	var gotCall ToolCall
	var gotResult string
	err := e.Stream(context.Background(), Request{CallID: "call-1"}, func(string) {},
		func(call ToolCall, result string, execErr error) {
			gotCall, gotResult = call, result
			require.NoError(t, execErr)
		})

	require.NoError(t, err)
	assert.Equal(t, "get_account_balance", gotCall.Name)
	assert.JSONEq(t, `{"balance":10}`, gotResult)
}

func TestStreamFlushesShortTrailingChunkAtEnd(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"type":"token","text":"Ok"}`,
	}))
	defer srv.Close()

	e := New(testCfg(), srv.URL, NewRegistry(), nil)

	var chunks []string
	err := e.Stream(context.Background(), Request{CallID: "call-1"},
		func(text string) { chunks = append(chunks, text) }, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Ok", chunks[0])
}

func TestBoundedHistoryDropsOldestPairs(t *testing.T) {
	var history []Message
	for i := 0; i < 6; i++ {
		history = append(history, Message{Role: "user", Text: fmt.Sprintf("u%d", i)}, Message{Role: "assistant", Text: fmt.Sprintf("a%d", i)})
	}

	bounded := BoundedHistory(history, 2)
	require.Len(t, bounded, 4)
	assert.Equal(t, "u4", bounded[0].Text)
}

func TestStreamPropagatesStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"type":"error","message":"upstream unavailable"}`,
	}))
	defer srv.Close()

	e := New(testCfg(), srv.URL, NewRegistry(), nil)
	err := e.Stream(context.Background(), Request{CallID: "call-1"}, func(string) {}, nil)
	assert.Error(t, err)
}
