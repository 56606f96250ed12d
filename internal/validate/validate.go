// Package validate decides whether a mirror response body is a usable
// payload or a failure page. Call sites depend only on Validator so the
// substring heuristic can be swapped for structural checks.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Validator inspects a response. A nil error means the body is acceptable.
type Validator interface {
	Validate(status int, body []byte) error
}

// Func adapts a function to Validator.
type Func func(status int, body []byte) error

func (f Func) Validate(status int, body []byte) error { return f(status, body) }

// RejectedError describes why a body was rejected.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "response rejected: " + e.Reason
}

func reject(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// DefaultDenylist holds substrings that mark a mirror failure page or rate
// limiting. Matching is case-insensitive.
var DefaultDenylist = []string{
	"shutdown",
	"blocked",
	"Forbidden",
	"error",
	"<!DOCTYPE",
	"<html",
	"Rate limit",
	"not found",
	"temporarily unavailable",
	"maintenance",
}

// Denylist rejects bodies containing any of its patterns.
type Denylist struct {
	patterns []string
}

// NewDenylist builds a Denylist; with no patterns DefaultDenylist is used.
func NewDenylist(patterns ...string) Denylist {
	if len(patterns) == 0 {
		patterns = DefaultDenylist
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return Denylist{patterns: lowered}
}

func (d Denylist) Validate(_ int, body []byte) error {
	lower := bytes.ToLower(body)
	for _, p := range d.patterns {
		if bytes.Contains(lower, []byte(p)) {
			return reject("body contains %q", p)
		}
	}
	return nil
}

// Status rejects non-2xx responses.
type Status struct{}

func (Status) Validate(status int, _ []byte) error {
	if status < 200 || status > 299 {
		return reject("http status %d", status)
	}
	return nil
}

// JSONObject requires a JSON object or array. Objects carrying a truthy
// "error" field are rejected.
type JSONObject struct{}

func (JSONObject) Validate(_ int, body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return reject("empty body")
	}
	switch trimmed[0] {
	case '[':
		if !json.Valid(trimmed) {
			return reject("malformed json")
		}
		return nil
	case '{':
	default:
		return reject("body is not a json object")
	}
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return reject("malformed json: %v", err)
	}
	if truthy(probe.Error) {
		return reject("payload error field set")
	}
	return nil
}

func truthy(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

// Structural requires the listed top-level keys in a JSON object body.
type Structural struct {
	Required []string
}

func (s Structural) Validate(_ int, body []byte) error {
	if len(s.Required) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return reject("body is not a json object")
	}
	for _, k := range s.Required {
		v, ok := obj[k]
		if !ok || strings.TrimSpace(string(v)) == "null" {
			return reject("missing key %q", k)
		}
	}
	return nil
}

// Chain runs validators in order and returns the first rejection.
type Chain []Validator

func (c Chain) Validate(status int, body []byte) error {
	for _, v := range c {
		if v == nil {
			continue
		}
		if err := v.Validate(status, body); err != nil {
			return err
		}
	}
	return nil
}

// Default is the mirror validator: 2xx, no failure-page substrings, JSON
// without an error field.
func Default() Validator {
	return Chain{Status{}, NewDenylist(), JSONObject{}}
}

// Lenient skips the substring heuristic. Used for first-party endpoints whose
// payloads legitimately contain words like "error" in descriptions.
func Lenient() Validator {
	return Chain{Status{}, JSONObject{}}
}
