package validation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectedErr error
		expectedLoc []any
		expectedMsg string
	}{
		{
			name:        "missing text field",
			body:        `{}`,
			expectedErr: ErrMissingField,
			expectedLoc: []any{"body", "text"},
			expectedMsg: "Field required",
		},
		{
			name:        "text is a string",
			body:        `{"text": "This should be a list, not a string"}`,
			expectedErr: ErrTypeMismatch,
			expectedLoc: []any{"body", "text"},
			expectedMsg: "Input should be a valid list",
		},
		{
			name:        "text is a number",
			body:        `{"text": 42}`,
			expectedErr: ErrTypeMismatch,
			expectedLoc: []any{"body", "text"},
			expectedMsg: "Input should be a valid list",
		},
		{
			name:        "text is null",
			body:        `{"text": null}`,
			expectedErr: ErrTypeMismatch,
			expectedLoc: []any{"body", "text"},
			expectedMsg: "Input should be a valid list",
		},
		{
			name:        "text is empty",
			body:        `{"text": []}`,
			expectedErr: ErrEmptyInput,
			expectedLoc: []any{"body", "text"},
			expectedMsg: "Value error, The list of sentiment text cannot be empty",
		},
		{
			name:        "body is not json",
			body:        `{"text": [`,
			expectedErr: ErrMalformedBody,
			expectedLoc: []any{"body"},
			expectedMsg: "JSON decode error",
		},
		{
			name:        "body is an array",
			body:        `["I love you."]`,
			expectedErr: ErrMalformedBody,
			expectedLoc: []any{"body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate([]byte(tt.body))
			require.Error(t, err)

			var verr *Error
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Details, 1)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expectedLoc, verr.Details[0].Loc)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, verr.Details[0].Msg)
			}
		})
	}
}

func TestValidate_ReportsEveryBadElement(t *testing.T) {
	_, err := Validate([]byte(`{"text": ["ok", 1, "fine", false]}`))
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Details, 2)

	assert.Equal(t, []any{"body", "text", 1}, verr.Details[0].Loc)
	assert.Equal(t, []any{"body", "text", 3}, verr.Details[1].Loc)
	assert.Equal(t, "string_type", verr.Details[0].Type)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValidate_RejectsInvalidUTF8(t *testing.T) {
	for _, body := range []string{"{\"text\":[\"good \xff\"]}", "{\"text\":[\"good \xfe\"]}"} {
		_, err := Validate([]byte(body))
		require.Error(t, err)

		var verr *Error
		require.True(t, errors.As(err, &verr))
		require.Len(t, verr.Details, 1)
		assert.Equal(t, []any{"body", "text", 0}, verr.Details[0].Loc)
		assert.Equal(t, "string_unicode", verr.Details[0].Type)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	}
}

func TestValidate_DuplicateFieldLastWins(t *testing.T) {
	req, err := Validate([]byte(`{"text": ["first"], "text": ["second", "third"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third"}, req.Text)

	_, err = Validate([]byte(`{"text": ["ok"], "text": "not a list"}`))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValidate_Valid(t *testing.T) {
	req, err := Validate([]byte(`{"text": ["I hate you.", "I love you.", "  spaced \"quoted\"  "], "extra": true}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"I hate you.", "I love you.", `  spaced "quoted"  `}, req.Text)
}

func TestFieldErrorJSON(t *testing.T) {
	_, err := Validate([]byte(`{}`))

	var verr *Error
	require.True(t, errors.As(err, &verr))

	raw, marshalErr := json.Marshal(verr.Details)
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `[{"loc":["body","text"],"msg":"Field required","type":"missing"}]`, string(raw))
}
