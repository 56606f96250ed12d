package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidator(t *testing.T) {
	v := Default()
	tests := []struct {
		name   string
		status int
		body   string
		ok     bool
	}{
		{"valid object", 200, `{"title":"ok","formatStreams":[]}`, true},
		{"valid array", 200, `[{"videoId":"abc"}]`, true},
		{"non 2xx", 503, `{"title":"ok"}`, false},
		{"html page", 200, `<!DOCTYPE html><html></html>`, false},
		{"shutdown notice", 200, `{"message":"This instance has been SHUTDOWN"}`, false},
		{"forbidden case-insensitive", 200, `{"msg":"forbidden"}`, false},
		{"rate limited", 200, `{"msg":"rate limit exceeded"}`, false},
		{"error field", 200, `{"error":"Video unavailable"}`, false},
		{"plain text", 200, `ok`, false},
		{"empty", 200, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.status, []byte(tt.body))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var rej *RejectedError
			assert.True(t, errors.As(err, &rej), "want RejectedError, got %v", err)
		})
	}
}

func TestLenientAllowsErrorWordInContent(t *testing.T) {
	body := []byte(`{"title":"Fixing an error in Go","error":null}`)
	assert.Error(t, Default().Validate(200, body))
	assert.NoError(t, Lenient().Validate(200, body))
}

func TestStructural(t *testing.T) {
	v := Structural{Required: []string{"title", "videoStreams"}}
	assert.NoError(t, v.Validate(200, []byte(`{"title":"x","videoStreams":[]}`)))
	assert.Error(t, v.Validate(200, []byte(`{"title":"x"}`)))
	assert.Error(t, v.Validate(200, []byte(`{"title":"x","videoStreams":null}`)))
	assert.Error(t, v.Validate(200, []byte(`[]`)))
}

func TestScriptValidator(t *testing.T) {
	s, err := NewScript(`function(status, body) {
		if (status !== 200) return "bad status";
		var obj = JSON.parse(body);
		return !!obj.title;
	}`)
	require.NoError(t, err)

	assert.NoError(t, s.Validate(200, []byte(`{"title":"ok"}`)))
	assert.Error(t, s.Validate(200, []byte(`{"name":"no title"}`)))

	err = s.Validate(500, []byte(`{"title":"ok"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad status")

	// JSON.parse throws on garbage.
	assert.Error(t, s.Validate(200, []byte(`<html>`)))
}

func TestScriptMustBeFunction(t *testing.T) {
	_, err := NewScript(`42`)
	assert.Error(t, err)
	_, err = NewScript(`function(`)
	assert.Error(t, err)
}
