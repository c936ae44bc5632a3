package convo

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FAQEntry is one knowledge-base item.
type FAQEntry struct {
	Category string
	Question string
	Answer   string
}

// FAQ is the knowledge base handed to the response engine with every turn.
type FAQ []FAQEntry

// LoadFAQ reads a knowledge base from a JSON file keyed by category:
//
//	{"hours": {"question": "What are your hours?", "answer": "..."}}
//
// Entries come back sorted by category so the rendered prompt is stable.
func LoadFAQ(path string) (FAQ, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("convo: read faq file: %w", err)
	}

	var byCategory map[string]struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, fmt.Errorf("convo: parse faq file %s: %w", path, err)
	}

	faq := make(FAQ, 0, len(byCategory))
	for category, item := range byCategory {
		if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.Answer) == "" {
			continue
		}
		faq = append(faq, FAQEntry{Category: category, Question: item.Question, Answer: item.Answer})
	}
	sort.Slice(faq, func(i, j int) bool { return faq[i].Category < faq[j].Category })
	return faq, nil
}

// Context renders the knowledge base as a system prompt addendum. Empty when
// there are no entries.
func (f FAQ) Context() string {
	if len(f) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nKnowledge Base (use this to answer common questions):\n")
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\n")
	for _, entry := range f {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", entry.Question, entry.Answer)
	}
	return b.String()
}
