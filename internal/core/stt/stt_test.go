package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/config"
)

func testConcurrency() config.ConcurrencyConfig {
	return config.ConcurrencyConfig{STTInFlightCap: 4, STTQueueDepthCap: 2}
}

func TestAdapterTranscribeHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "call-1", r.FormValue("conversation_id"))
		assert.Equal(t, "true", r.FormValue("enable_correction"))

		json.NewEncoder(w).Encode(wireResponse{
			Text:       "hola mundo",
			Language:   "es",
			Confidence: 0.9,
			Segments:   []wireSegment{{Text: "hola mundo", StartMs: 0, EndMs: 1000, Confidence: 0.9}},
			WordConfidences: []wireWordConfidence{
				{Word: "hola", Confidence: 0.95, StartMs: 0, EndMs: 400},
				{Word: "mundo", Confidence: 0.85, StartMs: 400, EndMs: 1000},
			},
		})
	}))
	defer srv.Close()

	a := New(testConcurrency(), srv.URL, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var got *Result
	var gotErr error
	a.Submit(context.Background(), Request{
		CallID: "call-1", Audio: []byte("wav-bytes"), SegmentDurationMs: 2000,
		EnableCorrection: true,
	}, func(res *Result, err error) {
		got, gotErr = res, err
		wg.Done()
	})
	wg.Wait()

	require.NoError(t, gotErr)
	assert.Equal(t, "hola mundo", got.Text)
	assert.Equal(t, "es", got.Language)
	require.Len(t, got.Words, 2)
	assert.Equal(t, "hola", got.Words[0].Word)
	assert.Equal(t, 400*time.Millisecond, got.Words[0].End)
}

func TestAdapterSerializesRequestsPerCall(t *testing.T) {
	var inFlight, maxInFlight int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()

		json.NewEncoder(w).Encode(wireResponse{Text: "ok"})
	}))
	defer srv.Close()

	cfg := config.ConcurrencyConfig{STTInFlightCap: 4, STTQueueDepthCap: 3}
	a := New(cfg, srv.URL, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		a.Submit(context.Background(), Request{CallID: "call-1", Audio: []byte("x"), SegmentDurationMs: 1000},
			func(res *Result, err error) { wg.Done() })
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight, "adapter must guarantee one in-flight request per call")
}

func TestAdapterDropsBeyondQueueCapacity(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		json.NewEncoder(w).Encode(wireResponse{Text: "ok"})
	}))
	defer srv.Close()

	cfg := config.ConcurrencyConfig{STTInFlightCap: 4, STTQueueDepthCap: 1}
	a := New(cfg, srv.URL, nil)

	var completed int32
	var mu sync.Mutex
	var results []error

	record := func(res *Result, err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	}
	_ = completed

	// one in flight (blocked on release), one queued, one dropped.
	a.Submit(context.Background(), Request{CallID: "call-1", Audio: []byte("a"), SegmentDurationMs: 1000}, record)
	time.Sleep(10 * time.Millisecond) // let the first request reach the server and block.
	a.Submit(context.Background(), Request{CallID: "call-1", Audio: []byte("b"), SegmentDurationMs: 1000}, record)
	a.Submit(context.Background(), Request{CallID: "call-1", Audio: []byte("c"), SegmentDurationMs: 1000}, record)

	time.Sleep(10 * time.Millisecond)
	close(release)
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, 2, "the third segment should have been dropped, not queued")
}

func TestTimeoutForScalesProportionally(t *testing.T) {
	assert.Equal(t, 3*time.Second, timeoutFor(8000))
	assert.Equal(t, 1500*time.Millisecond, timeoutFor(4000))
	assert.Equal(t, 3*time.Second, timeoutFor(0))
}
