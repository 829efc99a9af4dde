package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

const fence = "```"

// StripFence removes a surrounding markdown code fence, if any.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fence) {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) == 1 {
		// ```json [...] ``` on a single line
		s = strings.TrimPrefix(s, fence)
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(s, fence)
		return strings.TrimSpace(s)
	}
	if strings.TrimSpace(lines[len(lines)-1]) == fence {
		lines = lines[1 : len(lines)-1]
	} else {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// ParseAnswers decodes the model output into answers, preserving order.
// Only a payload that is not a JSON array fails; malformed elements fall back to defaults.
func ParseAnswers(text string) ([]domain.Answer, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(StripFence(text)), &items); err != nil {
		return nil, parseFailure(err)
	}
	// null decodes without error into a nil slice
	if items == nil {
		return nil, parseFailure(errors.New("answer payload is null, want a JSON array"))
	}
	answers := make([]domain.Answer, 0, len(items))
	for _, raw := range items {
		answers = append(answers, decodeAnswer(raw))
	}
	return answers, nil
}

func parseFailure(err error) error {
	return &domain.Error{
		Kind:  domain.KindResponseParseFailure,
		Stage: domain.StageInfer,
		Op:    "decode answers",
		Err:   err,
	}
}

func decodeAnswer(raw json.RawMessage) domain.Answer {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		fields = nil
	}
	return domain.Answer{
		Question: textField(fields, "question"),
		Answer:   textField(fields, "answer"),
		Position: intField(fields, "position"),
		Total:    intField(fields, "total"),
	}
}

func textField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return Placeholder
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 0
}
