package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT("7d1f4c1e-2b59-4a53-9a52-5a0b0c1d2e3f", "access", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "7d1f4c1e-2b59-4a53-9a52-5a0b0c1d2e3f", claims.UserID)
	assert.Equal(t, "access", claims.Type)
}

func TestJWT_Rejects(t *testing.T) {
	token, err := GenerateJWT("user-1", "access", "secret", time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateJWT("user-1", "access", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "secret")
	assert.Error(t, err)
}

func TestValidateStruct(t *testing.T) {
	type payload struct {
		Kind string `json:"kind" validate:"required,oneof=text image"`
		Body string `json:"body" validate:"max=5"`
	}

	assert.NoError(t, ValidateStruct(payload{Kind: "text", Body: "hi"}))

	err := ValidateStruct(payload{Kind: "video", Body: "too long"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Kind must be one of: text image")
	assert.Contains(t, err.Error(), "Body must be at most 5 characters")
}

func TestResponses(t *testing.T) {
	rec := httptest.NewRecorder()
	SuccessResponse(rec, map[string]string{"id": "srv-1"}, http.StatusCreated)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)

	rec = httptest.NewRecorder()
	ErrorResponse(rec, "nope", http.StatusForbidden)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "nope", body.Error)
}
