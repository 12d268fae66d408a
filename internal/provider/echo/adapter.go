// Package echo provides a testing provider that answers every capability
// deterministically from its input. It implements the domain.Provider
// interface without making external calls, for development and tests.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/davidbz/haku/internal/domain"
	"github.com/davidbz/haku/internal/observability"
)

const (
	providerID   = "echo"
	providerName = "Echo"
)

const (
	primaryScore   = 0.8
	secondaryScore = 0.5
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	disposed bool
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{disposed: false}
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

// Initialize prepares the provider. The echo provider has nothing to set up.
func (p *Provider) Initialize(ctx context.Context) error {
	observability.FromContext(ctx).Debug("echo provider initialized")
	return nil
}

// Dispose releases provider resources.
func (p *Provider) Dispose() error {
	p.disposed = true
	return nil
}

// ProvideCompletion echoes the query prefix back as two scored suggestions.
func (p *Provider) ProvideCompletion(
	ctx context.Context,
	query *domain.CompletionQuery,
	_ *domain.AiContext,
) (*domain.CompletionResult, error) {
	if query == nil {
		return nil, errors.New("query cannot be nil")
	}

	if err := p.ready(ctx); err != nil {
		return nil, err
	}

	at := domain.Range{Start: query.Position, End: query.Position}

	return &domain.CompletionResult{
		Items: []domain.Completion{
			{
				Text:  query.Prefix + "_echo",
				Range: at,
				Kind:  "text",
				Score: primaryScore,
			},
			{
				Text:  query.Prefix + "_echo_alt",
				Range: at,
				Kind:  "text",
				Score: secondaryScore,
			},
		},
	}, nil
}

// ProvideChatResponse echoes the message back with role framing.
func (p *Provider) ProvideChatResponse(
	ctx context.Context,
	message string,
	aiCtx *domain.AiContext,
) (*domain.ChatResponse, error) {
	if message == "" {
		return nil, errors.New("message cannot be empty")
	}

	if err := p.ready(ctx); err != nil {
		return nil, err
	}

	response := &domain.ChatResponse{
		Message:     fmt.Sprintf("[echo]: %s", message),
		Suggestions: []string{"echo " + firstWord(message)},
	}

	if aiCtx != nil && aiCtx.Language != "" {
		response.CodeBlocks = []domain.CodeBlock{
			{Language: aiCtx.Language, Code: "// " + message},
		}
	}

	return response, nil
}

// ProvideCodeEdit proposes a single edit that annotates the requested
// range with the instruction.
func (p *Provider) ProvideCodeEdit(
	ctx context.Context,
	req *domain.CodeEditRequest,
	_ *domain.AiContext,
) (*domain.CodeEditResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if err := p.ready(ctx); err != nil {
		return nil, err
	}

	return &domain.CodeEditResult{
		Edits: []domain.CodeEdit{
			{
				Range:   req.Range,
				NewText: "// " + req.Instruction + "\n" + req.Source,
				Kind:    "replace",
			},
		},
		Explanation: fmt.Sprintf("echoed instruction: %s", req.Instruction),
	}, nil
}

// ready checks disposal and cooperative cancellation before answering.
func (p *Provider) ready(ctx context.Context) error {
	if p.disposed {
		return errors.New("echo provider is disposed")
	}
	return ctx.Err()
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
