package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds operator credentials.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshTokenRequest presents a refresh token for rotation or logout.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
	IssuedAt     time.Time    `json:"issuedAt"`
	Operator     OperatorInfo `json:"operator"`
}

// OperatorInfo describes the authenticated operator in responses.
type OperatorInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName,omitempty"`
	Role        UserRole `json:"role"`
}

// JWTClaims is the access token payload. SessionID names the refresh session the token was
// issued from.
type JWTClaims struct {
	UserID    string   `json:"uid"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	SessionID string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// RefreshSession is what a refresh token unlocks. It lives in Redis keyed by the token hash
// and expires with the token.
type RefreshSession struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operatorId"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
}
