package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	apperrors "github.com/garyellow/osvita-occupancy/internal/errors"
)

var jsonpPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+\(([\s\S]*)\);?\s*$`)

// Unwrap strips an optional JSONP callback and an optional {"d": ...}
// envelope, returning the inner JSON document.
func Unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	if m := jsonpPattern.FindSubmatch(body); m != nil {
		body = bytes.TrimSpace(m[1])
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not JSON", apperrors.ErrMalformedPayload)
	}

	if len(body) > 0 && body[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(body, &env); err == nil {
			if d, ok := env["d"]; ok {
				return d, nil
			}
		}
	}
	return json.RawMessage(body), nil
}

// isFalsy matches payloads that carry no data.
func isFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}

func decodeInto[T any](action string, payload json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, apperrors.NewUpstreamError(action, 0, fmt.Errorf("%w: %v", apperrors.ErrMalformedPayload, err))
	}
	return out, nil
}
