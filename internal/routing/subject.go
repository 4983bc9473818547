// Package routing biases provider selection per question subject. The table
// is static policy: STEM subjects go to the GPT-style backend, current-events
// subjects to the search-augmented one, humanities to Gemini.
package routing

import (
	"strings"

	"github.com/js-web-coder/aca-ally/internal/llm"
)

type rule struct {
	keywords []string
	provider string
}

var subjectTable = []rule{
	{
		keywords: []string{"math", "algebra", "calculus", "physics", "chemistry", "computer science", "programming", "coding"},
		provider: llm.ProviderOpenAI,
	},
	{
		keywords: []string{"history", "current events", "politics", "geography", "economics", "news"},
		provider: llm.ProviderPerplexity,
	},
	{
		keywords: []string{"literature", "writing", "essay", "philosophy", "language", "poetry"},
		provider: llm.ProviderGemini,
	},
}

type SubjectRouter struct {
	primary string
}

// NewSubjectRouter returns a router that falls back to the configured
// primary provider when no keyword matches.
func NewSubjectRouter(primary string) *SubjectRouter {
	return &SubjectRouter{primary: strings.ToLower(primary)}
}

// PreferredProvider is a pure function of the subject string: case-insensitive
// substring match against the keyword table, primary provider otherwise.
func (r *SubjectRouter) PreferredProvider(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	if s == "" {
		return r.primary
	}
	for _, rule := range subjectTable {
		for _, kw := range rule.keywords {
			if strings.Contains(s, kw) {
				return rule.provider
			}
		}
	}
	return r.primary
}
