package domain

import "sort"

// completionKey is the deduplication identity of a completion.
type completionKey struct {
	text  string
	start Position
}

// MergeCompletions combines per-provider completion results into one.
// Items are deduplicated by (text, range start) with the first-seen item
// winning, then ordered by descending score. The sort is stable, so items
// with equal scores keep their arrival order (provider registration order,
// then item order within a provider).
func MergeCompletions(results []*CompletionResult) *CompletionResult {
	seen := make(map[completionKey]struct{})
	merged := make([]Completion, 0)

	for _, result := range results {
		if result == nil {
			continue
		}
		for _, item := range result.Items {
			key := completionKey{text: item.Text, start: item.Range.Start}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	return &CompletionResult{Items: merged}
}

// MergeChatResponses combines per-provider chat responses into one.
// The primary message comes from the first provider with a non-empty
// message; later providers only contribute code blocks and suggestions.
// Code blocks concatenate in provider order. Suggestions form an
// order-preserving union with duplicates removed.
func MergeChatResponses(results []*ChatResponse) *ChatResponse {
	merged := &ChatResponse{}
	seenSuggestions := make(map[string]struct{})

	for _, result := range results {
		if result == nil {
			continue
		}

		if merged.Message == "" && result.Message != "" {
			merged.Message = result.Message
		}

		merged.CodeBlocks = append(merged.CodeBlocks, result.CodeBlocks...)

		for _, suggestion := range result.Suggestions {
			if _, dup := seenSuggestions[suggestion]; dup {
				continue
			}
			seenSuggestions[suggestion] = struct{}{}
			merged.Suggestions = append(merged.Suggestions, suggestion)
		}
	}

	return merged
}

// MergeCodeEditResults combines per-provider code edit results into one.
// Edits concatenate in provider order with no conflict resolution; the
// caller is responsible for applying overlapping edits safely. The
// explanation comes from the first provider with a non-empty one.
func MergeCodeEditResults(results []*CodeEditResult) *CodeEditResult {
	merged := &CodeEditResult{}

	for _, result := range results {
		if result == nil {
			continue
		}

		merged.Edits = append(merged.Edits, result.Edits...)

		if merged.Explanation == "" && result.Explanation != "" {
			merged.Explanation = result.Explanation
		}
	}

	return merged
}
