package llm

import (
	"encoding/json"
	"strings"
)

// Suggestion is one ghost-completion candidate parsed from a backend reply.
type Suggestion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

const maxSuggestions = 3

// ParseSuggestions extracts a strict `[{"text","confidence"}, ...]` JSON
// array from reply, tolerating surrounding prose a model might add despite
// being asked for JSON only. Returns at most maxSuggestions entries.
func ParseSuggestions(reply string) ([]Suggestion, error) {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end < start {
		return nil, errNoSuggestionArray
	}
	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(reply[start:end+1]), &suggestions); err != nil {
		return nil, err
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

type suggestionParseError string

func (e suggestionParseError) Error() string { return string(e) }

const errNoSuggestionArray = suggestionParseError("llm: no JSON array found in completion reply")
