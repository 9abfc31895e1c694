// Package auth issues and checks the session tokens used by the relay socket
// and the reward RPC.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wfunc/piratepanic/config"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptyDevice  = errors.New("device id is empty")
)

// deviceNamespace scopes the UUIDv5 user ids derived from device ids.
var deviceNamespace = uuid.MustParse("6f1c63a4-8c1e-4a55-9d0a-2a8f2d7c1b90")

type Claims struct {
	Username string `json:"usn,omitempty"`
	jwt.RegisteredClaims
}

type Auth struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func New(cfg config.AuthConfig) *Auth {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{key: []byte(cfg.SigningKey), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// UserID derives the stable user id of a device.
func UserID(deviceID string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(deviceID)).String()
}

// AuthenticateDevice returns a signed token and the user id for deviceID.
func (a *Auth) AuthenticateDevice(deviceID, username string) (string, string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", "", ErrEmptyDevice
	}
	userID := UserID(deviceID)
	if username == "" {
		username = userID[:8]
	}
	now := a.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, userID, nil
}

// ParseToken verifies tok and returns its claims.
func (a *Auth) ParseToken(tok string) (*Claims, error) {
	if tok == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !t.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken pulls the token from an Authorization header value.
func BearerToken(header string) string {
	if tok, ok := strings.CutPrefix(header, "Bearer "); ok {
		return tok
	}
	return ""
}

type DeviceRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type SessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// HandleAuthenticateDevice serves POST /v2/account/authenticate/device.
func (a *Auth) HandleAuthenticateDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	token, userID, err := a.AuthenticateDevice(req.ID, req.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(SessionResponse{Token: token, UserID: userID})
}
