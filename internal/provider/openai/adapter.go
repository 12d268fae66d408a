// Package openai provides a capability provider backed by the OpenAI API
// using the official SDK. Every capability is served through the Chat
// Completions endpoint; replies are post-parsed into domain types.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

const (
	providerID   = "openai"
	providerName = "OpenAI"

	// completionChoices is the number of alternatives requested per
	// completion query.
	completionChoices = 3

	// topCompletionScore is assigned to the first returned choice;
	// later choices step down by completionScoreStep. The API reports
	// no usable confidence, so choice order stands in for it.
	topCompletionScore  = 0.9
	completionScoreStep = 0.1
)

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	model  string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		model:  config.Model,
	}, nil
}

// ID returns the stable provider identity.
func (p *Provider) ID() string {
	return providerID
}

// Name returns the display name.
func (p *Provider) Name() string {
	return providerName
}

// Capabilities returns the kinds this provider declares.
func (p *Provider) Capabilities() []domain.CapabilityKind {
	return []domain.CapabilityKind{
		domain.KindCodeCompletion,
		domain.KindChat,
		domain.KindCodeEdit,
	}
}

// Initialize prepares the provider for use.
func (p *Provider) Initialize(ctx context.Context) error {
	observability.FromContext(ctx).Debug("OpenAI provider initialized",
		observability.String("model", p.model))
	return nil
}

// Dispose releases provider resources. The SDK client holds no
// connection state that needs explicit teardown.
func (p *Provider) Dispose() error {
	return nil
}

// ProvideCompletion answers a completion query with ranked alternatives.
func (p *Provider) ProvideCompletion(
	ctx context.Context,
	query *domain.CompletionQuery,
	aiCtx *domain.AiContext,
) (*domain.CompletionResult, error) {
	if query == nil {
		return nil, errors.New("query cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API for completion")

	prompt := "Complete the following code fragment. Reply with only the text that continues it, no commentary:\n\n" + query.Prefix

	params := p.chatParams(completionSystemPrompt, prompt, aiCtx)
	params.N = openai.Int(completionChoices)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	at := domain.Range{Start: query.Position, End: query.Position}
	items := make([]domain.Completion, 0, len(resp.Choices))

	for i, choice := range resp.Choices {
		text := strings.TrimSpace(choice.Message.Content)
		if text == "" {
			continue
		}

		items = append(items, domain.Completion{
			Text:  text,
			Range: at,
			Kind:  "model",
			Score: topCompletionScore - completionScoreStep*float64(i),
			Metadata: map[string]string{
				"model": string(resp.Model),
			},
		})
	}

	return &domain.CompletionResult{Items: items}, nil
}

// ProvideChatResponse answers a chat message.
func (p *Provider) ProvideChatResponse(
	ctx context.Context,
	message string,
	aiCtx *domain.AiContext,
) (*domain.ChatResponse, error) {
	if message == "" {
		return nil, errors.New("message cannot be empty")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API for chat")

	resp, err := p.client.Chat.Completions.New(ctx, p.chatParams(chatSystemPrompt, message, aiCtx))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	content := firstChoice(resp)
	if content == "" {
		return nil, errors.New("OpenAI returned an empty reply")
	}

	response := domain.ParseChatReply(content)
	response.Metadata = map[string]string{"model": string(resp.Model)}

	return response, nil
}

// ProvideCodeEdit answers a code edit request with a replacement for the
// requested range.
func (p *Provider) ProvideCodeEdit(
	ctx context.Context,
	req *domain.CodeEditRequest,
	aiCtx *domain.AiContext,
) (*domain.CodeEditResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API for code edit")

	prompt := fmt.Sprintf(
		"Instruction: %s\n\nRewrite the code below accordingly. Reply with the full revised code in a single fenced code block, followed by a short explanation.\n\n%s",
		req.Instruction, fencedSource(req),
	)

	resp, err := p.client.Chat.Completions.New(ctx, p.chatParams(editSystemPrompt, prompt, aiCtx))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	reply := domain.ParseChatReply(firstChoice(resp))
	if len(reply.CodeBlocks) == 0 {
		return nil, errors.New("OpenAI reply contained no code block")
	}

	return &domain.CodeEditResult{
		Edits: []domain.CodeEdit{
			{
				Range:   req.Range,
				NewText: reply.CodeBlocks[0].Code,
				Kind:    "replace",
			},
		},
		Explanation: reply.Message,
	}, nil
}

const (
	completionSystemPrompt = "You are a code completion engine."
	chatSystemPrompt       = "You are a concise programming assistant."
	editSystemPrompt       = "You are a code editing engine."
)

// chatParams builds the shared request shape: ambient context rendered
// into the system prompt, user content as the single user message.
func (p *Provider) chatParams(system, user string, aiCtx *domain.AiContext) openai.ChatCompletionNewParams {
	if preamble := contextPreamble(aiCtx); preamble != "" {
		system = system + "\n" + preamble
	}

	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
}

// contextPreamble renders the ambient context facets for the model.
func contextPreamble(aiCtx *domain.AiContext) string {
	if aiCtx == nil {
		return ""
	}

	var lines []string

	if aiCtx.Language != "" {
		lines = append(lines, "Language: "+aiCtx.Language)
	}
	if aiCtx.Framework != "" {
		lines = append(lines, "Framework: "+aiCtx.Framework)
	}
	if aiCtx.Workspace != nil && aiCtx.Workspace.Name != "" {
		lines = append(lines, "Workspace: "+aiCtx.Workspace.Name)
	}
	if aiCtx.File != nil && aiCtx.File.Path != "" {
		lines = append(lines, "File: "+aiCtx.File.Path)
	}
	if aiCtx.Selection != nil && aiCtx.Selection.Text != "" {
		lines = append(lines, "Selection:\n"+aiCtx.Selection.Text)
	}
	// Sorted so the rendered prompt is deterministic.
	keys := make([]string, 0, len(aiCtx.Preferences))
	for key := range aiCtx.Preferences {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("Preference %s: %s", key, aiCtx.Preferences[key]))
	}

	return strings.Join(lines, "\n")
}

// fencedSource wraps the request source in a language-tagged fence.
func fencedSource(req *domain.CodeEditRequest) string {
	language := ""
	if dot := strings.LastIndex(req.FilePath, "."); dot >= 0 {
		language = req.FilePath[dot+1:]
	}
	return fmt.Sprintf("```%s\n%s\n```", language, req.Source)
}

func firstChoice(resp *openai.ChatCompletion) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}
