package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type powerRequest struct {
	Signal string `json:"signal" validate:"required,oneof=start stop restart kill"`
}

type grantRequest struct {
	User        string   `validate:"required"`
	Permissions []string `validate:"dive,capability"`
}

type nested struct {
	Inner powerRequest
	Port  int `validate:"min=1,max=65535"`
}

func TestNew(t *testing.T) {
	v := New()
	assert.NotNil(t, v)
	assert.NotNil(t, v.structValidator)
}

func TestValidate_Valid(t *testing.T) {
	v := New()

	result := v.Validate(powerRequest{Signal: "start"})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.NoError(t, v.Struct(powerRequest{Signal: "kill"}))
}

func TestValidate_OneOf(t *testing.T) {
	v := New()

	result := v.Validate(powerRequest{Signal: "explode"})
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Signal", result.Errors[0].Field)
	assert.Equal(t, "must be one of: start stop restart kill", result.Errors[0].Message)
	assert.Equal(t, "explode", result.Errors[0].Value)
}

func TestValidate_Required(t *testing.T) {
	v := New()

	err := v.Struct(powerRequest{})
	require.Error(t, err)
	assert.Equal(t, "Signal: is required", err.Error())
}

func TestValidate_NestedFieldPath(t *testing.T) {
	v := New()

	result := v.Validate(nested{Inner: powerRequest{Signal: "start"}, Port: 70000})
	require.False(t, result.Valid)
	assert.Equal(t, map[string]string{"Port": "must be at most 65535"}, result.FieldErrors())

	result = v.Validate(nested{Port: 80})
	require.False(t, result.Valid)
	assert.Equal(t, "Inner.Signal", result.Errors[0].Field)
}

func TestValidate_CapabilityTag(t *testing.T) {
	v := New()

	assert.True(t, v.Validate(grantRequest{User: "u", Permissions: []string{"file.read", "control.*", "*"}}).Valid)

	result := v.Validate(grantRequest{User: "u", Permissions: []string{"file.read", "File Read"}})
	require.False(t, result.Valid)
	assert.Equal(t, "Permissions[1]", result.Errors[0].Field)
	assert.Equal(t, "must be a capability string such as file.read", result.Errors[0].Message)
}

func TestIsCapability(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"file.read", true},
		{"file.read-content", true},
		{"admin.websocket.install", true},
		{"websocket.connect", true},
		{"control.*", true},
		{"*", true},
		{"", false},
		{"file.", false},
		{".read", false},
		{"FILE.READ", false},
		{"file read", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCapability(tt.in))
		})
	}
}
