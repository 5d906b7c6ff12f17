package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fiscalops/apbots/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func contentReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func toolReply(id, name, args string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []any{map[string]any{
					"id": id, "type": "function",
					"function": map[string]any{"name": name, "arguments": args},
				}},
			},
			"finish_reason": "tool_calls",
		}},
	})
	return string(b)
}

func newTestClient(url string, cfg Config) *Client {
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.Timeout = 5 * time.Second
	return NewClient(cfg, discard)
}

func TestComplete_ToolLoop(t *testing.T) {
	var calls atomic.Int32
	var second map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		n := calls.Add(1)
		if n == 1 {
			_, _ = io.WriteString(w, toolReply("call_1", "po_search", `{"pattern":"227878"}`))
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&second))
		_, _ = io.WriteString(w, contentReply("```json\n{\"po_id\":\"0000227878\"}\n```"))
	}))
	defer srv.Close()

	var gotPattern string
	c := newTestClient(srv.URL, Config{})
	out, err := c.Complete(context.Background(), llm.Request{
		Purpose: "po_identifier",
		System:  "find the PO",
		User:    []string{"PO: 227878"},
		Schema:  llm.POIdentificationSchema(),
		Tools: []llm.Tool{{
			Name:       "po_search",
			Parameters: llm.POSearchParameters(),
			Handler: func(_ context.Context, args json.RawMessage) (any, error) {
				var a struct{ Pattern string }
				_ = json.Unmarshal(args, &a)
				gotPattern = a.Pattern
				return []map[string]string{{"po_id": "0000227878"}}, nil
			},
		}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"po_id":"0000227878"}`, string(out))
	assert.Equal(t, "227878", gotPattern)
	assert.EqualValues(t, 2, calls.Load())

	msgs := second["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	assert.Equal(t, "tool", last["role"])
	assert.Equal(t, "call_1", last["tool_call_id"])
	assert.Contains(t, last["content"], "0000227878")
}

func TestComplete_ToolRoundsBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, toolReply("c", "po_search", `{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, Config{MaxToolRounds: 2})
	_, err := c.Complete(context.Background(), llm.Request{Schema: llm.ReviewSchema()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool loop exceeded")
	assert.EqualValues(t, 3, calls.Load())
}

func TestComplete_ImageAsDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(b), "data:image/jpeg;base64,")
		assert.Contains(t, string(b), `"type":"json_schema"`)
		_, _ = io.WriteString(w, contentReply(`{"vendor_name":null}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, Config{})
	out, err := c.Complete(context.Background(), llm.Request{
		Image:  []byte{0xff, 0xd8, 0xff},
		Schema: llm.VendorDetectionSchema(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendor_name":null}`, string(out))
}

func TestComplete_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, Config{BreakerFailures: 2, BreakerOpenDelay: time.Minute})
	req := llm.Request{Schema: llm.ReviewSchema()}

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), req)
		var se *llm.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	}
	_, err := c.Complete(context.Background(), req)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit open"))
	assert.EqualValues(t, 2, calls.Load())
}

func TestComplete_NonJSONContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, contentReply("I could not find a PO."))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, Config{}).Complete(context.Background(), llm.Request{Schema: llm.ReviewSchema()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-JSON")
}
