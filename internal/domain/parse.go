package domain

import "strings"

const codeFence = "```"

// ParseChatReply converts a raw model reply into a structured chat
// response. Fenced code blocks become CodeBlocks and are stripped from
// the prose; lines starting with "- " outside fences become suggestions.
func ParseChatReply(message string) *ChatResponse {
	prose, blocks, suggestions := splitReply(message)
	return &ChatResponse{
		Message:     prose,
		CodeBlocks:  blocks,
		Suggestions: suggestions,
	}
}

// ParseTaskReply converts a chat reply for a higher-level operation into
// a structured task result. Structure already extracted by the provider
// is carried over; structure still embedded in the message is parsed out.
func ParseTaskReply(reply *ChatResponse) *TaskResult {
	if reply == nil {
		return &TaskResult{}
	}

	result := &TaskResult{
		CodeBlocks:  append([]CodeBlock(nil), reply.CodeBlocks...),
		Suggestions: append([]string(nil), reply.Suggestions...),
	}

	prose, blocks, suggestions := splitReply(reply.Message)
	result.Text = prose
	result.CodeBlocks = append(result.CodeBlocks, blocks...)
	result.Suggestions = append(result.Suggestions, suggestions...)

	return result
}

// splitReply walks the message line by line, tracking fence state.
func splitReply(message string) (string, []CodeBlock, []string) {
	var (
		prose       strings.Builder
		blocks      []CodeBlock
		suggestions []string
		current     strings.Builder
		language    string
		inFence     bool
	)

	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, codeFence):
			if inFence {
				blocks = append(blocks, CodeBlock{
					Language: language,
					Code:     strings.TrimSuffix(current.String(), "\n"),
				})
				current.Reset()
				inFence = false
				continue
			}
			language = strings.TrimSpace(strings.TrimPrefix(trimmed, codeFence))
			inFence = true

		case inFence:
			current.WriteString(line)
			current.WriteString("\n")

		case strings.HasPrefix(trimmed, "- "):
			suggestions = append(suggestions, strings.TrimPrefix(trimmed, "- "))

		default:
			prose.WriteString(line)
			prose.WriteString("\n")
		}
	}

	// An unterminated fence still yields its partial block.
	if inFence && current.Len() > 0 {
		blocks = append(blocks, CodeBlock{
			Language: language,
			Code:     strings.TrimSuffix(current.String(), "\n"),
		})
	}

	return strings.TrimSpace(prose.String()), blocks, suggestions
}

// taskInstructions maps each higher-level kind to the instruction prefix
// used for its chat round-trip.
//
//nolint:gochecknoglobals // Static prompt table
var taskInstructions = map[CapabilityKind]string{
	KindExplanation:             "Explain the following code:",
	KindRefactoring:             "Refactor the following code and explain the changes:",
	KindBugFix:                  "Find and fix the bugs in the following code:",
	KindTestGeneration:          "Generate tests for the following code:",
	KindDocumentation:           "Write documentation for the following code:",
	KindCodeReview:              "Review the following code and list issues:",
	KindPerformanceOptimization: "Optimize the following code for performance:",
	KindSecurityAnalysis:        "Analyze the following code for security issues:",
}

// BuildTaskPrompt renders the chat message for a higher-level operation.
func BuildTaskPrompt(req *TaskRequest) string {
	var prompt strings.Builder

	prompt.WriteString(taskInstructions[req.Kind])
	prompt.WriteString("\n\n")

	if req.FilePath != "" {
		prompt.WriteString("File: ")
		prompt.WriteString(req.FilePath)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString(req.Input)

	return prompt.String()
}
