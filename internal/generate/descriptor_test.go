package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	t.Parallel()

	desc, err := ParseDescriptor(`{
		"id": "app-js",
		"name": "App",
		"description": "Main component",
		"instructions": "Write a counter component",
		"type": "application/vnd.ant.code",
		"includeArtifactsId": ["styles-css"]
	}`)
	require.NoError(t, err)
	assert.Equal(t, "app-js", desc.ID)
	assert.Equal(t, "App", desc.Name)
	assert.Equal(t, []string{"styles-css"}, desc.IncludeArtifactsID)
}

func TestParseDescriptorErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "here is your artifact: {id: app"},
		{"missing id", `{"name": "App"}`},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseDescriptor(tt.raw)
			assert.ErrorIs(t, err, ErrBadDescriptor)
		})
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`{"id":"a"}`, `{"id":"a"}`},
		{"```json\n{\"id\":\"a\"}\n```", `{"id":"a"}`},
		{"```\n{\"id\":\"a\"}\n```", `{"id":"a"}`},
		{"  {\"id\":\"a\"}  ", `{"id":"a"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in))
	}
}

func TestRepairDescriptor(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		complete: func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "id: broken")
			return "```json\n{\"id\": \"broken\", \"name\": \"Fixed\"}\n```", nil
		},
	}

	desc, err := repairDescriptor(context.Background(), model, "{id: broken, name: Fixed}")
	require.NoError(t, err)
	assert.Equal(t, "broken", desc.ID)
	assert.Equal(t, "Fixed", desc.Name)
}

func TestRepairDescriptorFailure(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		complete: func(context.Context, string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	_, err := repairDescriptor(context.Background(), model, "not json")
	assert.Error(t, err)

	// A repair that still does not parse is also terminal.
	model.complete = func(context.Context, string) (string, error) {
		return "still not json", nil
	}
	_, err = repairDescriptor(context.Background(), model, "not json")
	assert.ErrorIs(t, err, ErrBadDescriptor)
}
