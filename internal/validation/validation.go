// Package validation checks bulk-predict request bodies before any cache or
// model work is done. All violations are collected and reported together.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spacesedan/mlapi/internal/models"
	"github.com/tidwall/gjson"
)

const TEXT_FIELD = "text"

var (
	ErrMalformedBody = errors.New("malformed request body")
	ErrMissingField  = errors.New("missing field")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrEmptyInput    = errors.New("empty input")
)

// FieldError is one violation. Loc points at the offending value, starting
// with "body".
type FieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`

	kind error
}

type Error struct {
	Details []FieldError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		msgs = append(msgs, fmt.Sprintf("%v: %s", d.Loc, d.Msg))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Details))
	for _, d := range e.Details {
		errs = append(errs, d.kind)
	}
	return errs
}

// Validate parses a bulk-predict body into a SentimentRequest. The returned
// error, when non-nil, is always an *Error.
func Validate(body []byte) (models.SentimentRequest, error) {
	var req models.SentimentRequest

	if !gjson.ValidBytes(body) {
		return req, newError(FieldError{
			Loc:  []any{"body"},
			Msg:  "JSON decode error",
			Type: "json_invalid",
			kind: ErrMalformedBody,
		})
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return req, newError(FieldError{
			Loc:  []any{"body"},
			Msg:  "Input should be a valid dictionary or object to extract fields from",
			Type: "model_attributes_type",
			kind: ErrMalformedBody,
		})
	}

	field := lastField(root, TEXT_FIELD)
	loc := []any{"body", TEXT_FIELD}

	switch {
	case !field.Exists():
		return req, newError(FieldError{
			Loc:  loc,
			Msg:  "Field required",
			Type: "missing",
			kind: ErrMissingField,
		})
	case !field.IsArray():
		return req, newError(FieldError{
			Loc:  loc,
			Msg:  "Input should be a valid list",
			Type: "list_type",
			kind: ErrTypeMismatch,
		})
	}

	items := field.Array()
	if len(items) == 0 {
		return req, newError(FieldError{
			Loc:  loc,
			Msg:  "Value error, The list of sentiment text cannot be empty",
			Type: "value_error",
			kind: ErrEmptyInput,
		})
	}

	var details []FieldError
	texts := make([]string, 0, len(items))
	for i, item := range items {
		if item.Type != gjson.String {
			details = append(details, FieldError{
				Loc:  []any{"body", TEXT_FIELD, i},
				Msg:  "Input should be a valid string",
				Type: "string_type",
				kind: ErrTypeMismatch,
			})
			continue
		}
		text := item.String()
		if !utf8.ValidString(text) {
			details = append(details, FieldError{
				Loc:  []any{"body", TEXT_FIELD, i},
				Msg:  "Input should be a valid string, unable to parse raw data as a unicode string",
				Type: "string_unicode",
				kind: ErrTypeMismatch,
			})
			continue
		}
		texts = append(texts, text)
	}
	if len(details) > 0 {
		return req, &Error{Details: details}
	}

	req.Text = texts
	return req, nil
}

func newError(details ...FieldError) *Error {
	return &Error{Details: details}
}

// lastField returns the last member named key. gjson's Get returns the
// first, but a JSON object decoder keeps the last duplicate.
func lastField(obj gjson.Result, key string) gjson.Result {
	var field gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			field = v
		}
		return true
	})
	return field
}
