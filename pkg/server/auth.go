package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned by Login for any bad name or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims holds the JWT claims for an authenticated player session.
type Claims struct {
	PlayerName string `json:"player_name"`
	jwt.RegisteredClaims
}

// AuthService issues and validates JWTs bound to roster accounts.
type AuthService struct {
	accounts Accounts
	jwtKey   []byte
	expiry   time.Duration
}

// NewAuthService creates an auth service. If jwtSecret is empty, a random
// 32-byte key is generated.
func NewAuthService(accounts Accounts, jwtSecret string, expirySeconds int) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	expiry := 24 * time.Hour
	if expirySeconds > 0 {
		expiry = time.Duration(expirySeconds) * time.Second
	}
	return &AuthService{accounts: accounts, jwtKey: key, expiry: expiry}
}

// Login authenticates a player and returns a JWT token.
func (a *AuthService) Login(name, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || !a.accounts.Check(name, password) {
		return "", ErrInvalidCredentials
	}
	return a.sign(name)
}

func (a *AuthService) sign(name string) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.ToLower(name),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "profstats",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// ValidateToken parses and validates a JWT token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RefreshToken creates a new token with a fresh expiry for an existing valid token.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}
	return a.sign(claims.PlayerName)
}

// GenerateJWTSecret generates a random hex-encoded secret suitable for jwt_secret config.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
