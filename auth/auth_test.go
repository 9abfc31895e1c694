package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/piratepanic/config"
)

func newAuth() *Auth {
	return New(config.AuthConfig{SigningKey: "test-key", Issuer: "piratepanic", TokenTTL: time.Hour})
}

func TestAuthenticateDeviceRoundTrip(t *testing.T) {
	a := newAuth()

	token, userID, err := a.AuthenticateDevice("device-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, UserID("device-1"), userID)

	claims, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestUserIDIsStablePerDevice(t *testing.T) {
	assert.Equal(t, UserID("device-1"), UserID("device-1"))
	assert.NotEqual(t, UserID("device-1"), UserID("device-2"))
}

func TestParseTokenRejects(t *testing.T) {
	a := newAuth()
	token, _, err := a.AuthenticateDevice("device-1", "")
	require.NoError(t, err)

	_, err = a.ParseToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	other := New(config.AuthConfig{SigningKey: "other-key", Issuer: "piratepanic"})
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired token")

	_, _, err = a.AuthenticateDevice("  ", "")
	assert.ErrorIs(t, err, ErrEmptyDevice)
}

func TestHandleAuthenticateDevice(t *testing.T) {
	a := newAuth()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v2/account/authenticate/device", strings.NewReader(`{"id":"device-9","username":"bob"}`))

	a.HandleAuthenticateDevice(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, UserID("device-9"), resp.UserID)
	claims, err := a.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)

	rec = httptest.NewRecorder()
	a.HandleAuthenticateDevice(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Empty(t, BearerToken("Basic abc"))
}
