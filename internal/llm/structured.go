package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of a completion that may be wrapped
// in prose or markdown fences. Returns the substring from the first '{'
// to the last '}'.
func ExtractJSON(text string) (string, error) {
	text = stripFences(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}

// ExtractCodeBlock pulls the contents of the first fenced code block.
// If no fences are present the whole text is returned trimmed.
func ExtractCodeBlock(text string) string {
	idx := strings.Index(text, "```")
	if idx == -1 {
		return strings.TrimSpace(text)
	}
	rest := text[idx+3:]
	// Skip the optional language tag on the fence line.
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	return ExtractCodeBlock(text)
}

// CompleteJSON asks for a structured completion and decodes the JSON object
// it contains into v. On an extraction or decode failure it re-asks once
// with the error appended, then gives up so the caller can fall back.
func CompleteJSON(ctx context.Context, c Client, systemPrompt, userPrompt string, v any) error {
	raw, err := c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}

	decodeErr := decodeCompletion(raw, v)
	if decodeErr == nil {
		return nil
	}

	retryPrompt := fmt.Sprintf(
		"%s\n\nYour previous response was not valid JSON for the requested schema (%v). Respond with ONLY the JSON object, no prose.",
		userPrompt, decodeErr)
	raw, err = c.CompleteWithSystem(ctx, systemPrompt, retryPrompt)
	if err != nil {
		return err
	}
	if err := decodeCompletion(raw, v); err != nil {
		return fmt.Errorf("invalid structured response after retry: %w", err)
	}
	return nil
}

func decodeCompletion(raw string, v any) error {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), v)
}
