package domain

import "time"

// CapabilityKind identifies a category of AI operation a provider may support.
type CapabilityKind string

const (
	// KindCodeCompletion is inline code completion with multi-provider fan-out.
	KindCodeCompletion CapabilityKind = "code_completion"

	// KindChat is conversational assistance with multi-provider fan-out.
	KindChat CapabilityKind = "chat"

	// KindCodeEdit is instruction-driven code modification with multi-provider fan-out.
	KindCodeEdit CapabilityKind = "code_edit"

	// Higher-level kinds are single-provider chat round-trips with
	// response post-parsing. No fan-out or merge is defined for them.
	KindExplanation             CapabilityKind = "explanation"
	KindRefactoring             CapabilityKind = "refactoring"
	KindBugFix                  CapabilityKind = "bug_fix"
	KindTestGeneration          CapabilityKind = "test_generation"
	KindDocumentation           CapabilityKind = "documentation"
	KindCodeReview              CapabilityKind = "code_review"
	KindPerformanceOptimization CapabilityKind = "performance_optimization"
	KindSecurityAnalysis        CapabilityKind = "security_analysis"
)

// AllKinds lists every capability kind in the closed enumeration.
//
//nolint:gochecknoglobals // Closed enumeration table
var AllKinds = []CapabilityKind{
	KindCodeCompletion,
	KindChat,
	KindCodeEdit,
	KindExplanation,
	KindRefactoring,
	KindBugFix,
	KindTestGeneration,
	KindDocumentation,
	KindCodeReview,
	KindPerformanceOptimization,
	KindSecurityAnalysis,
}

// Valid reports whether the kind belongs to the closed enumeration.
func (k CapabilityKind) Valid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsTask reports whether the kind is a higher-level operation served by a
// single chat round-trip rather than multi-provider fan-out.
func (k CapabilityKind) IsTask() bool {
	switch k {
	case KindCodeCompletion, KindChat, KindCodeEdit:
		return false
	default:
		return k.Valid()
	}
}

// Position is a zero-based location in a document.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// CompletionQuery describes the completion site a provider should fill.
type CompletionQuery struct {
	FilePath string   `json:"file_path,omitempty"`
	Prefix   string   `json:"prefix"`
	Position Position `json:"position"`
}

// Completion is a single completion suggestion from a provider.
// The deduplication identity of a completion is (Text, Range.Start).
type Completion struct {
	Text     string            `json:"text"`
	Range    Range             `json:"range"`
	Kind     string            `json:"kind,omitempty"`
	Score    float64           `json:"score"` // in [0, 1]
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CompletionResult is one provider's answer to a completion query.
type CompletionResult struct {
	Items []Completion `json:"items"`
}

// CodeBlock is a fenced code snippet inside a chat reply.
type CodeBlock struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}

// ChatResponse is one provider's answer to a chat message.
type ChatResponse struct {
	Message     string            `json:"message"`
	CodeBlocks  []CodeBlock       `json:"code_blocks,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CodeEditRequest asks providers to modify source according to an instruction.
type CodeEditRequest struct {
	FilePath    string `json:"file_path,omitempty"`
	Source      string `json:"source"`
	Instruction string `json:"instruction"`
	Range       Range  `json:"range"`
}

// CodeEdit is a single proposed edit. Overlapping edits are not resolved
// here; applying them safely is the caller's responsibility.
type CodeEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"new_text"`
	Kind    string `json:"kind,omitempty"`
}

// CodeEditResult is one provider's answer to a code edit request.
type CodeEditResult struct {
	Edits       []CodeEdit `json:"edits"`
	Explanation string     `json:"explanation,omitempty"`
}

// TaskRequest is the input for a higher-level capability kind.
type TaskRequest struct {
	Kind     CapabilityKind `json:"kind"`
	Input    string         `json:"input"`
	FilePath string         `json:"file_path,omitempty"`
}

// TaskResult is the post-parsed reply of a higher-level operation.
type TaskResult struct {
	Text        string      `json:"text"`
	CodeBlocks  []CodeBlock `json:"code_blocks,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// WorkspaceInfo describes the workspace a request originates from.
type WorkspaceInfo struct {
	Name     string `json:"name,omitempty"`
	RootPath string `json:"root_path,omitempty"`
}

// FileInfo describes the active file.
type FileInfo struct {
	Path     string `json:"path,omitempty"`
	Language string `json:"language,omitempty"`
}

// SelectionInfo describes the active selection.
type SelectionInfo struct {
	Range Range  `json:"range"`
	Text  string `json:"text,omitempty"`
}

// AiContext is the ambient information supplied to providers alongside a
// request. Every facet is optional. Updates overlay field-wise: an absent
// facet in an update leaves the prior value untouched.
type AiContext struct {
	Workspace   *WorkspaceInfo    `json:"workspace,omitempty"`
	File        *FileInfo         `json:"file,omitempty"`
	Selection   *SelectionInfo    `json:"selection,omitempty"`
	Language    string            `json:"language,omitempty"`
	Framework   string            `json:"framework,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// Clone returns a copy that shares no mutable state with the receiver.
func (c AiContext) Clone() AiContext {
	out := c

	if c.Workspace != nil {
		ws := *c.Workspace
		out.Workspace = &ws
	}
	if c.File != nil {
		f := *c.File
		out.File = &f
	}
	if c.Selection != nil {
		sel := *c.Selection
		out.Selection = &sel
	}
	if c.Preferences != nil {
		prefs := make(map[string]string, len(c.Preferences))
		for k, v := range c.Preferences {
			prefs[k] = v
		}
		out.Preferences = prefs
	}

	return out
}

// IsEmpty reports whether no facet is set.
func (c AiContext) IsEmpty() bool {
	return c.Workspace == nil &&
		c.File == nil &&
		c.Selection == nil &&
		c.Language == "" &&
		c.Framework == "" &&
		len(c.Preferences) == 0
}

// Overlay applies update onto base field-wise and returns the result.
// Facets absent from the update keep the base value. Preferences replace
// as a whole facet rather than merging per key.
func Overlay(base, update AiContext) AiContext {
	out := base.Clone()

	if update.Workspace != nil {
		ws := *update.Workspace
		out.Workspace = &ws
	}
	if update.File != nil {
		f := *update.File
		out.File = &f
	}
	if update.Selection != nil {
		sel := *update.Selection
		out.Selection = &sel
	}
	if update.Language != "" {
		out.Language = update.Language
	}
	if update.Framework != "" {
		out.Framework = update.Framework
	}
	if update.Preferences != nil {
		prefs := make(map[string]string, len(update.Preferences))
		for k, v := range update.Preferences {
			prefs[k] = v
		}
		out.Preferences = prefs
	}

	return out
}

// ResponseEvent is published after a dispatch completes successfully.
type ResponseEvent struct {
	RequestID string
	Kind      CapabilityKind
	Result    any
	Duration  time.Duration
}

// ErrorEvent is published after a dispatch fails.
type ErrorEvent struct {
	RequestID string
	Err       error
	Operation string
}

// ContextChangedEvent is published after the ambient context mutates.
// Context is the new full context; Delta is the update that was applied.
type ContextChangedEvent struct {
	Context AiContext
	Delta   AiContext
}
