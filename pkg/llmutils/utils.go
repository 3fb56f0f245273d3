// Package llmutils recovers structured data from model output, which often
// wraps JSON in code fences or prose.
package llmutils

import (
	"bytes"
	"encoding/json"
)

var fence = []byte("```")

// CleanJSON trims the prose and code fences around the outermost JSON
// object or array in bs. Input without braces or brackets is returned as is.
func CleanJSON(bs []byte) []byte {
	start := firstIndexAny(bs, '{', '[')
	if start == -1 {
		return bs
	}
	bs = bs[start:]

	end := max(bytes.LastIndexByte(bs, '}'), bytes.LastIndexByte(bs, ']'))
	if end == -1 {
		return bs
	}
	return bs[:end+1]
}

// TrimBackticks returns the content of the first ```json or ``` fence,
// or the text unchanged when there is none.
func TrimBackticks(text string) string {
	bs := []byte(text)
	open := bytes.Index(bs, fence)
	if open == -1 {
		return text
	}
	body := bs[open+len(fence):]

	// skip the info string, unless the JSON starts on the fence line
	for i := 0; i < len(body) && body[i] != '{' && body[i] != '['; i++ {
		if body[i] == '\n' {
			body = body[i+1:]
			break
		}
	}

	if closing := bytes.LastIndex(body, fence); closing != -1 {
		body = body[:closing]
	}
	return string(bytes.TrimSpace(body))
}

// DecodeJSON returns the JSON value embedded in text.
func DecodeJSON(text string) (any, bool) {
	cleaned := CleanJSON([]byte(TrimBackticks(text)))
	if len(cleaned) == 0 || (cleaned[0] != '{' && cleaned[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(cleaned, &v); err != nil {
		return nil, false
	}
	return v, true
}

func firstIndexAny(bs []byte, chars ...byte) int {
	first := -1
	for _, c := range chars {
		if i := bytes.IndexByte(bs, c); i != -1 && (first == -1 || i < first) {
			first = i
		}
	}
	return first
}
