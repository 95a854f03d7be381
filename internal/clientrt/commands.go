package clientrt

import (
	"os"
	"strings"
)

// runLocalCommand dispatches a chat query beginning with "/" against the
// client-side command table. ok is false when name did not match any
// built-in, meaning the caller should fall through to a daemon Request
// instead. promptTemplate is whatever system prompt the active backend is
// currently configured with, for the "prompt" inspector.
func runLocalCommand(query, promptTemplate string) (output string, ok bool) {
	text := strings.TrimPrefix(query, "/")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	switch fields[0] {
	case "prompt":
		return promptTemplate, true
	default:
		return "", false
	}
}

// splitRedirect extracts a trailing "> path" from a chat query, returning
// the remaining query and the destination path (empty when none present).
func splitRedirect(query string) (remaining, path string) {
	idx := strings.LastIndex(query, ">")
	if idx < 0 {
		return query, ""
	}
	p := strings.TrimSpace(query[idx+1:])
	if p == "" {
		return query, ""
	}
	return strings.TrimSpace(query[:idx]), p
}

// writeRedirect writes content to path, truncating any existing file.
func writeRedirect(path, content string) error {
	return os.WriteFile(path, []byte(content+"\n"), 0o644)
}
