package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiscalops/apbots/internal/llm"
	"github.com/fiscalops/apbots/internal/metrics"
	"github.com/sony/gobreaker/v2"
)

type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   *string    `json:"content"`
			Refusal   *string    `json:"refusal"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements llm.Model. Tool calls are executed locally and fed
// back until the model produces its final JSON or MaxToolRounds is hit.
func (c *Client) Complete(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	start := time.Now()
	messages := []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: userContent(req)},
	}
	handlers := make(map[string]llm.ToolHandler, len(req.Tools))
	for _, t := range req.Tools {
		handlers[t.Name] = t.Handler
	}

	for round := 0; ; round++ {
		if round > c.cfg.MaxToolRounds {
			return nil, fmt.Errorf("tool loop exceeded %d rounds", c.cfg.MaxToolRounds)
		}
		raw, err := c.call(ctx, c.body(req, messages))
		if err != nil {
			return nil, err
		}
		var cr chatResponse
		if err := json.Unmarshal(raw, &cr); err != nil {
			return nil, fmt.Errorf("decode chat response: %w", err)
		}
		if len(cr.Choices) == 0 {
			return nil, errors.New("no choices in chat response")
		}
		msg := cr.Choices[0].Message

		if len(msg.ToolCalls) > 0 {
			messages = append(messages, chatMessage{Role: "assistant", ToolCalls: msg.ToolCalls})
			for _, tc := range msg.ToolCalls {
				messages = append(messages, chatMessage{
					Role:       "tool",
					ToolCallID: tc.ID,
					Content:    c.runTool(ctx, handlers, tc),
				})
			}
			continue
		}

		if msg.Refusal != nil && *msg.Refusal != "" {
			return nil, fmt.Errorf("model refused: %s", *msg.Refusal)
		}
		if msg.Content == nil {
			return nil, fmt.Errorf("empty content (finish_reason=%s)", cr.Choices[0].FinishReason)
		}
		content := stripFences(*msg.Content)
		if !json.Valid([]byte(content)) {
			return nil, fmt.Errorf("model returned non-JSON content (%d bytes)", len(content))
		}
		c.logger.Info("llm.complete.ok",
			"purpose", req.Purpose,
			"model", c.cfg.Model,
			"tool_rounds", round,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return json.RawMessage(content), nil
	}
}

func (c *Client) body(req llm.Request, messages []chatMessage) map[string]any {
	body := map[string]any{
		"model":    c.cfg.Model,
		"messages": messages,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.Schema.Name,
				"schema": req.Schema.Definition,
				"strict": true,
			},
		},
	}
	if c.cfg.Temperature > 0 {
		body["temperature"] = c.cfg.Temperature
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		body["tools"] = tools
	}
	return body
}

// call sends one request through the rate limiter and circuit breaker.
func (c *Client) call(ctx context.Context, body map[string]any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.LLMRequests.WithLabelValues("rate_limited").Inc()
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.LLMRequests.WithLabelValues("breaker_open").Inc()
		return nil, fmt.Errorf("llm circuit open: %w", err)
	case err != nil:
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LLMRequests.WithLabelValues("ok").Inc()
	return raw, nil
}

func (c *Client) runTool(ctx context.Context, handlers map[string]llm.ToolHandler, tc toolCall) string {
	h, ok := handlers[tc.Function.Name]
	if !ok {
		return `{"error":"unknown tool"}`
	}
	result, err := h(ctx, json.RawMessage(tc.Function.Arguments))
	if err != nil {
		c.logger.Warn("llm.tool.error", "tool", tc.Function.Name, "error", err)
		b, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(b)
	}
	b, err := json.Marshal(result)
	if err != nil {
		return `{"error":"unencodable tool result"}`
	}
	c.logger.Debug("llm.tool.ok", "tool", tc.Function.Name, "result_bytes", len(b))
	return string(b)
}

func userContent(req llm.Request) []map[string]any {
	parts := make([]map[string]any, 0, len(req.User)+1)
	for _, u := range req.User {
		if strings.TrimSpace(u) == "" {
			continue
		}
		parts = append(parts, map[string]any{"type": "text", "text": u})
	}
	if len(req.Image) > 0 {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	if len(parts) == 0 {
		parts = append(parts, map[string]any{"type": "text", "text": "(no document content)"})
	}
	return parts
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
