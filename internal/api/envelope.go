package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Envelope is the single response shape every call is normalized to.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// normalize turns whatever the backend sent into an Envelope. Most endpoints
// answer {success, data, message}; legacy ones return a bare array or object,
// which becomes Data.
func normalize(status int, body []byte) Envelope {
	ok := status >= 200 && status < 300
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Envelope{Success: ok}
	}
	if !json.Valid(body) {
		return Envelope{Success: ok}
	}

	switch body[0] {
	case '[':
		return Envelope{Success: ok, Data: body}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return Envelope{Success: ok}
		}
		if _, wrapped := fields["success"]; wrapped {
			var env Envelope
			if err := json.Unmarshal(body, &env); err == nil {
				if env.Message == "" {
					env.Message = stringField(fields, "error")
				}
				return env
			}
		}
		env := Envelope{Success: ok, Data: body}
		if !ok {
			env.Data = nil
			env.Message = stringField(fields, "message")
			if env.Message == "" {
				env.Message = stringField(fields, "error")
			}
			env.Code = stringField(fields, "code")
		}
		return env
	}
	return Envelope{Success: ok, Data: body}
}

func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// DecodeInto unmarshals the envelope data into out. Missing data leaves out
// untouched.
func (e Envelope) DecodeInto(out any) error {
	if out == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

type pageJSON[T any] struct {
	Items      []T                `json:"items"`
	Pagination *domain.Pagination `json:"pagination"`
}

// DecodePage accepts either {items, pagination} or a bare array.
func DecodePage[T any](data json.RawMessage) (domain.Page[T], error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return domain.SinglePage[T](nil), nil
	}
	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return domain.Page[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return domain.SinglePage(items), nil
	}
	var p pageJSON[T]
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Page[T]{}, fmt.Errorf("decode page: %w", err)
	}
	if p.Pagination == nil {
		return domain.SinglePage(p.Items), nil
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return domain.Page[T]{Items: p.Items, Pagination: *p.Pagination}, nil
}
