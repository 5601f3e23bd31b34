package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const maxErrorMessageLen = 200

// DecodeJSONBody parses a JSON response body into v
func DecodeJSONBody(body []byte, v interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty response body")
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response body: %w", err)
	}

	return nil
}

// ExtractErrorMessage returns the human readable message of an error body.
// It understands {"error": "..."}, {"error": {"message": "..."}} and
// {"message": "..."}, and falls back to the trimmed raw body.
func ExtractErrorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		switch e := payload["error"].(type) {
		case string:
			if e != "" {
				return truncate(e)
			}
		case map[string]interface{}:
			if msg, ok := e["message"].(string); ok && msg != "" {
				return truncate(msg)
			}
		}
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return truncate(msg)
		}
		return ""
	}

	return truncate(strings.TrimSpace(string(trimmed)))
}

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return s[:maxErrorMessageLen] + "..."
}
