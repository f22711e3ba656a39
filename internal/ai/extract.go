package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoJSONFound means the reply held no {...} block at all.
	ErrNoJSONFound = errors.New("no json object found in model response")
	// ErrMalformedJSON means a fragment or the extracted block did not parse.
	ErrMalformedJSON = errors.New("malformed json in model response")
)

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Character is what the model inferred from an image.
type Character struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

type chatFragment struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// AccumulateFragments decodes each non-blank line of a streamed chat reply
// and concatenates the message contents in order.
func AccumulateFragments(raw string) (string, error) {
	var content strings.Builder
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var fragment chatFragment
		if err := json.Unmarshal([]byte(line), &fragment); err != nil {
			return "", fmt.Errorf("%w: fragment on line %d: %v", ErrMalformedJSON, i+1, err)
		}
		content.WriteString(fragment.Message.Content)
	}
	return content.String(), nil
}

// StripFences removes markdown code fence markers.
func StripFences(content string) string {
	content = strings.ReplaceAll(content, "```json", "")
	return strings.ReplaceAll(content, "```", "")
}

// ParseCharacter slices from the first '{' to the last '}' and decodes it.
// An opening brace that is never closed counts as a truncated object.
func ParseCharacter(content string) (Character, error) {
	stripped := StripFences(content)
	block := jsonObjectPattern.FindString(stripped)
	if block == "" {
		if strings.Contains(stripped, "{") {
			return Character{}, fmt.Errorf("%w: unterminated object", ErrMalformedJSON)
		}
		return Character{}, ErrNoJSONFound
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return Character{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	return Character{
		Name: stringField(fields, "name"),
		Bio:  stringField(fields, "bio"),
	}, nil
}

// ExtractCharacter runs both stages on a raw streamed body. The accumulated
// content is returned even on parse failure so callers can show it.
func ExtractCharacter(raw string) (Character, string, error) {
	content, err := AccumulateFragments(raw)
	if err != nil {
		return Character{}, "", err
	}
	character, err := ParseCharacter(content)
	return character, content, err
}

func stringField(fields map[string]any, key string) string {
	value, ok := fields[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}
