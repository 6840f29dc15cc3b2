package upload

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ToSequence normalizes a form field into one value per position.
// An absent field yields an empty sequence, repeated fields are kept in order,
// and a single JSON array value ("[\"ARVORE\", \"OUTRO\"]") is expanded.
func ToSequence(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	if len(values) == 1 {
		if items, ok := decodeJSONArray(values[0]); ok {
			return items
		}
	}

	out := make([]string, len(values))
	copy(out, values)
	return out
}

func decodeJSONArray(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, false
	}

	out := make([]string, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		case json.Number:
			out[i] = v.String()
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			out[i] = string(bytes.TrimSpace(b))
		}
	}
	return out, true
}

// at returns seq[i], or "" when the sequence is shorter.
func at(seq []string, i int) string {
	if i < len(seq) {
		return strings.TrimSpace(seq[i])
	}
	return ""
}
