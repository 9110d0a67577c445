package backend

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Envelope is the uniform shape of every backend response. Some endpoints
// wrap their payload as {success, message, data}, others return the raw
// object; Normalize folds both into this form.
type Envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Wrapped bool            `json:"wrapped"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Normalize builds an Envelope from a status code and a response body
func Normalize(status int, body []byte) *Envelope {
	env := &Envelope{
		Status:  status,
		Success: status >= 200 && status < 300,
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return env
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		if json.Valid(body) {
			env.Data = json.RawMessage(body)
		} else if !env.Success {
			env.Message = strings.TrimSpace(string(body))
		}
		return env
	}

	env.Message = stringField(fields, "message")
	env.Error = stringField(fields, "error")

	if raw, ok := fields["success"]; ok {
		var flag bool
		if err := json.Unmarshal(raw, &flag); err == nil {
			env.Wrapped = true
			env.Success = env.Success && flag
			if data, ok := fields["data"]; ok && !isNull(data) {
				env.Data = data
			}
			return env
		}
	}

	env.Data = json.RawMessage(body)
	return env
}

// Decode unmarshals the data block into v
func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Data) == 0 {
		return errEmptyData
	}
	return json.Unmarshal(e.Data, v)
}

// HasID reports whether the data block is an object carrying an id
func (e *Envelope) HasID() bool {
	if e == nil || len(e.Data) == 0 {
		return false
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return false
	}
	raw, ok := fields["id"]
	if !ok || isNull(raw) {
		return false
	}
	return string(raw) != `""`
}

// MessageOr returns the backend message or the fallback
func (e *Envelope) MessageOr(fallback string) string {
	if e != nil && e.Message != "" {
		return e.Message
	}
	return fallback
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
