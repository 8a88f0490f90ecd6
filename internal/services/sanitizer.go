package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"sanctuary/internal/models"
)

// EntrySanitizer normalizes journal fields before they are stored. Titles and
// moods become plain text. Content is kept exactly as written and escaped by
// whoever renders it.
type EntrySanitizer struct {
	plain *bluemonday.Policy
}

func NewEntrySanitizer() *EntrySanitizer {
	return &EntrySanitizer{plain: bluemonday.StrictPolicy()}
}

func (s *EntrySanitizer) Sanitize(f models.EntryFields) models.EntryFields {
	out := models.EntryFields{
		Title:    s.text(f.Title),
		Content:  f.Content,
		PromptID: f.PromptID,
	}
	if f.Mood != nil {
		mood := s.text(*f.Mood)
		if mood != "" {
			out.Mood = &mood
		}
	}
	return out
}

// text drops all tags and returns unescaped plain text.
func (s *EntrySanitizer) text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(v)))
}
