package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GeminiOptions configures the Gemini engine.
type GeminiOptions struct {
	Model       string  // default "gemini-2.5-flash"
	Temperature float32 // default 0.7
	MaxTokens   int32   // default 500
	Timeout     time.Duration
}

// GeminiEngine generates responses through the Gemini API using function
// calling for structured actions.
type GeminiEngine struct {
	client *genai.Client
	opts   GeminiOptions
	log    *slog.Logger
	tools  []*genai.Tool
}

func NewGemini(ctx context.Context, apiKey string, opts GeminiOptions, log *slog.Logger) (*GeminiEngine, error) {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
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
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrGenerate, err)
	}
	return &GeminiEngine{
		client: client,
		opts:   opts,
		log:    log,
		tools:  geminiTools(),
	}, nil
}

func geminiTools() []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(actionTools))
	for _, t := range actionTools {
		props := make(map[string]*genai.Schema, len(t.Params))
		for _, p := range t.Params {
			props[p.Name] = &genai.Schema{
				Type:        genai.TypeString,
				Description: p.Description,
				Enum:        p.Enum,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   t.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func (g *GeminiEngine) Generate(ctx context.Context, messages []Message, systemPrompt string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	contents := geminiContents(messages)

	if systemPrompt == "" {
		systemPrompt = "You are a helpful AI receptionist."
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.opts.Temperature),
		MaxOutputTokens:   g.opts.MaxTokens,
		Tools:             g.tools,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, contents, cfg)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: gemini: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: gemini: %v", classify(err), err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if fc := part.FunctionCall; fc != nil {
				text, _ := fc.Args["response"].(string)
				g.log.Debug("gemini function call", "action", fc.Name)
				return &Response{
					Text:       text,
					Action:     fc.Name,
					ActionArgs: fc.Args,
				}, nil
			}
			if part.Text != "" {
				return fallbackResponse(part.Text), nil
			}
		}
	}
	return fallbackResponse(""), nil
}
