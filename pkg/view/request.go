package view

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// DefaultTargetKey is the request body key naming the target relation.
const DefaultTargetKey = "view_name"

// Request is a validated query request: the target plus the remaining body
// keys, in the order they appeared.
type Request struct {
	Target  string
	Filters []Entry
}

// DecodeRequest reads a flat JSON object from r. The value under targetKey
// names the target; every other key becomes a filter entry whose raw value is
// kept untouched for Coerce.
func DecodeRequest(r io.Reader, targetKey string) (Request, error) {
	if targetKey == "" {
		targetKey = DefaultTargetKey
	}
	missingTarget := ValidationError("Invalid request. Please provide '%s'.", targetKey)

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return Request{}, invalidBody(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Request{}, ValidationError("Request body must be a JSON object.")
	}

	var req Request
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Request{}, invalidBody(err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Request{}, invalidBody(err)
		}

		if _, dup := seen[key]; dup {
			return Request{}, ValidationError("Key '%s' appears more than once.", key)
		}
		seen[key] = struct{}{}

		if key == targetKey {
			if err := json.Unmarshal(raw, &req.Target); err != nil {
				return Request{}, missingTarget
			}
			continue
		}
		req.Filters = append(req.Filters, Entry{Key: key, Raw: raw})
	}

	// closing brace, then nothing else
	if _, err := dec.Token(); err != nil {
		return Request{}, invalidBody(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Request{}, ValidationError("Request body must contain a single JSON object.")
	}

	if strings.TrimSpace(req.Target) == "" {
		return Request{}, missingTarget
	}
	return req, nil
}

func invalidBody(err error) *Error {
	if errors.Is(err, io.EOF) {
		return ValidationError("Request body is empty.")
	}
	return &Error{Kind: KindValidation, Message: "Invalid JSON body: " + err.Error(), Err: err}
}
