package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OpenAIOptions configures the chat-completions engine. BaseURL allows any
// OpenAI-compatible endpoint.
type OpenAIOptions struct {
	Model       string  // default "gpt-4o"
	BaseURL     string  // default "https://api.openai.com/v1"
	Temperature float64 // default 0.7
	MaxTokens   int     // default 500
	Timeout     time.Duration
}

// OpenAIEngine generates responses through an OpenAI-compatible
// chat-completions API using tool calling for structured actions.
type OpenAIEngine struct {
	apiKey     string
	opts       OpenAIOptions
	httpClient *http.Client
	log        *slog.Logger
	tools      []map[string]any
}

func NewOpenAI(apiKey string, opts OpenAIOptions, log *slog.Logger) *OpenAIEngine {
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 500
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIEngine{
		apiKey:     strings.TrimSpace(apiKey),
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		log:        log,
		tools:      openAITools(),
	}
}

func openAITools() []map[string]any {
	tools := make([]map[string]any, 0, len(actionTools))
	for _, t := range actionTools {
		props := make(map[string]any, len(t.Params))
		for _, p := range t.Params {
			prop := map[string]any{
				"type":        "string",
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
		}
		tools = append(tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   t.Required,
				},
			},
		})
	}
	return tools
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAIEngine) Generate(ctx context.Context, messages []Message, systemPrompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	if systemPrompt == "" {
		systemPrompt = "You are a helpful AI receptionist."
	}
	chat := make([]openAIMessage, 0, len(messages)+1)
	chat = append(chat, openAIMessage{Role: "system", Content: systemPrompt})
	for _, m := range messages {
		chat = append(chat, openAIMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(map[string]any{
		"model":       o.opts.Model,
		"messages":    chat,
		"tools":       o.tools,
		"tool_choice": "auto",
		"temperature": o.opts.Temperature,
		"max_tokens":  o.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGenerate, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrGenerate, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", classify(err), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status 429", ErrRateLimit)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerate, resp.StatusCode, string(body))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrGenerate, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrGenerate, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return fallbackResponse(""), nil
	}

	msg := out.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		fn := msg.ToolCalls[0].Function
		args := map[string]any{}
		if err := json.Unmarshal([]byte(fn.Arguments), &args); err != nil {
			o.log.Warn("tool call arguments unparseable", "action", fn.Name, "error", err)
		}
		text, _ := args["response"].(string)
		o.log.Debug("openai tool call", "action", fn.Name)
		return &Response{
			Text:       text,
			Action:     fn.Name,
			ActionArgs: args,
		}, nil
	}
	return fallbackResponse(msg.Content), nil
}
