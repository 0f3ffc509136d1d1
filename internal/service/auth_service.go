package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/exam-proctor-api/internal/models"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

type operatorStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Operator, error)
	FindByID(ctx context.Context, id string) (*models.Operator, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type refreshSessionStore interface {
	Save(ctx context.Context, token string, session *models.RefreshSession) error
	Take(ctx context.Context, token string) (*models.RefreshSession, error)
	Revoke(ctx context.Context, token string) error
}

// AuthConfig holds token lifetimes and the signing secret.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// AuthService logs operators in and issues HS256 access tokens backed by single-use refresh
// tokens.
type AuthService struct {
	operators operatorStore
	sessions  refreshSessionStore
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

func NewAuthService(operators operatorStore, sessions refreshSessionStore, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Issuer == "" {
		config.Issuer = "exam-proctor-api"
	}
	return &AuthService{operators: operators, sessions: sessions, validator: validate, logger: logger, config: config, now: time.Now}
}

// HashPassword returns the bcrypt hash stored in operators.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var errBadCredentials = appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrValidation, "invalid login payload")
	}

	op, err := s.operators.FindByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errBadCredentials
	case err != nil:
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "load operator")
	case bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)) != nil:
		return nil, errBadCredentials
	case !op.Active:
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	pair, err := s.issue(ctx, op, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	if err := s.operators.TouchLastLogin(ctx, op.ID, pair.IssuedAt); err != nil {
		s.logger.Warn("last login not recorded", zap.String("operator_id", op.ID), zap.Error(err))
	}
	s.logger.Info("operator logged in", zap.String("operator_id", op.ID), zap.String("role", string(op.Role)))
	return pair, nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token is consumed
// whether or not the exchange succeeds.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrValidation, "invalid refresh payload")
	}

	session, err := s.sessions.Take(ctx, req.RefreshToken)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "load refresh session")
	}
	if session == nil || !s.now().Before(session.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or already used")
	}

	op, err := s.operators.FindByID(ctx, session.OperatorID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "operator no longer exists")
	case err != nil:
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "load operator")
	case !op.Active:
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	return s.issue(ctx, op, req.IP, req.UserAgent)
}

// Logout revokes the refresh token. Access tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, req models.RefreshTokenRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrapf(err, appErrors.ErrValidation, "invalid logout payload")
	}
	if err := s.sessions.Revoke(ctx, req.RefreshToken); err != nil {
		return appErrors.Wrapf(err, appErrors.ErrInternal, "revoke refresh session")
	}
	return nil
}

// ValidateToken verifies signature, issuer and lifetime of an access token.
func (s *AuthService) ValidateToken(raw string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrUnauthorized, "invalid token")
	}
	if !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) issue(ctx context.Context, op *models.Operator, ip, userAgent string) (*models.TokenPair, error) {
	now := s.now().UTC()
	session := &models.RefreshSession{
		ID:         uuid.NewString(),
		OperatorID: op.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.config.RefreshTokenExpiry),
		IP:         ip,
		UserAgent:  userAgent,
	}

	claims := &models.JWTClaims{
		UserID:    op.ID,
		Role:      op.Role,
		Email:     op.Email,
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   op.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "sign access token")
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "generate refresh token")
	}
	if err := s.sessions.Save(ctx, refresh, session); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "store refresh session")
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenExpiry / time.Second),
		IssuedAt:     now,
		Operator:     op.Info(),
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
