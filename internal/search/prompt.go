package search

import (
	"strings"

	"github.com/hyperjump/kbase/internal/models"
)

// DefaultPromptTemplate frames the question with the retrieved reference text.
// {context} and {question} are substituted.
const DefaultPromptTemplate = "你是一个友好的技术导师。参考文档：{context}\n回答用户：{question}"

// BuildContext joins the contents of results, in rank order, one per line.
func BuildContext(results []models.ScoredResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Entry.Content)
	}
	return strings.Join(parts, "\n")
}

// AugmentPrompt returns the user message for question with results as reference material.
// With no results the question is returned unchanged.
func AugmentPrompt(question string, results []models.ScoredResult) string {
	return AugmentPromptWith(DefaultPromptTemplate, question, results)
}

// AugmentPromptWith is AugmentPrompt with a caller-supplied template.
func AugmentPromptWith(template, question string, results []models.ScoredResult) string {
	if len(results) == 0 {
		return question
	}
	if template == "" {
		template = DefaultPromptTemplate
	}
	return strings.NewReplacer(
		"{context}", BuildContext(results),
		"{question}", question,
	).Replace(template)
}
