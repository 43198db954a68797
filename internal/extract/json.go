// Package extract recovers structured results from free-form agent output.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Strategy identifies which recovery tier produced a result.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyFenced
	StrategyBraceScan
	StrategyWhole
)

func (s Strategy) String() string {
	switch s {
	case StrategyFenced:
		return "fenced"
	case StrategyBraceScan:
		return "brace-scan"
	case StrategyWhole:
		return "whole"
	}
	return "none"
}

// ErrNoJSON is returned when no tier yields an acceptable object.
var ErrNoJSON = errors.New("no JSON object found in output")

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*\\n?```")

// Recover tries, in order: the first fenced code block, every balanced-brace
// candidate containing the quoted marker key, and finally the whole output.
// decode is called with each candidate; a decode error moves on to the next
// candidate. An empty marker accepts any brace candidate.
func Recover(output, marker string, decode func(raw []byte) error) (Strategy, error) {
	if m := fencedRe.FindStringSubmatch(output); m != nil {
		if decode([]byte(m[1])) == nil {
			return StrategyFenced, nil
		}
	}

	quoted := ""
	if marker != "" {
		quoted = `"` + marker + `"`
	}
	for _, candidate := range braceCandidates(output) {
		if quoted != "" && !strings.Contains(candidate, quoted) {
			continue
		}
		if decode([]byte(candidate)) == nil {
			return StrategyBraceScan, nil
		}
	}

	if decode([]byte(strings.TrimSpace(output))) == nil {
		return StrategyWhole, nil
	}
	return StrategyNone, ErrNoJSON
}

// Decode recovers a T from output. validate, if non-nil, rejects candidates
// that parse but do not satisfy the schema, and recovery continues.
func Decode[T any](output, marker string, validate func(*T) error) (*T, Strategy, error) {
	var result *T
	strategy, err := Recover(output, marker, func(raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if validate != nil {
			if err := validate(&v); err != nil {
				return err
			}
		}
		result = &v
		return nil
	})
	if err != nil {
		return nil, StrategyNone, err
	}
	return result, strategy, nil
}

// braceCandidates returns, for every '{' in s, the substring up to its
// matching '}' by depth counting. Openers with no match are skipped.
// Braces inside JSON strings are counted too; such candidates fail to
// decode and are passed over.
func braceCandidates(s string) []string {
	var out []string
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		for i := start; i < len(s); i++ {
			switch s[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth == 0 {
				out = append(out, s[start:i+1])
				break
			}
		}
	}
	return out
}

var prURLRe = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/\d+`)

// PRURL returns the pull-request URL found in output, or "". A JSON object
// with a "pr_url" field takes precedence over a bare URL in the text.
func PRURL(output string) string {
	var payload struct {
		PRURL string `json:"pr_url"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &payload); err == nil && payload.PRURL != "" {
		return payload.PRURL
	}
	return prURLRe.FindString(output)
}
