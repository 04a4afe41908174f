package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxhub/pharmacy/internal/platform/apperr"
)

type sampleDTO struct {
	OrderID string `json:"originalOrderId" validate:"required,uuid"`
	Status  string `json:"status" validate:"required,oneof=approved rejected"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func TestStruct_Valid(t *testing.T) {
	err := Struct(sampleDTO{OrderID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427", Status: "approved"})
	assert.NoError(t, err)
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(sampleDTO{OrderID: "nope", Status: "maybe", Email: "x"})
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "originalOrderId must be a valid id")
	assert.Contains(t, err.Error(), "status must be one of [approved rejected]")
	assert.Contains(t, err.Error(), "email must be a valid email address")
}

func TestStruct_Required(t *testing.T) {
	err := Struct(sampleDTO{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "originalOrderId is required")
	assert.Contains(t, err.Error(), "status is required")
}

func TestFields(t *testing.T) {
	err := Validate.Struct(sampleDTO{Status: "approved"})
	assert.Equal(t, map[string]string{"originalOrderId": "required"}, Fields(err))
	assert.Nil(t, Fields(nil))
}
