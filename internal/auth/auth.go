// Package auth signs in organizers and checks organizer and participant tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
)

const (
	RoleAdmin   = "admin"
	RoleFinance = "finance"
	RoleUser    = "user"

	issuer = "ssgc-relay"
)

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	key      []byte
	ttl      time.Duration
	accounts map[string]config.AdminAccount
	firebase *Firebase
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg config.Config, log *zap.Logger) *Service {
	s := &Service{
		key:      []byte(cfg.Auth.JWTSecret),
		ttl:      cfg.Auth.JWTTTL,
		accounts: cfg.AdminAccounts,
		log:      log,
		now:      time.Now,
	}
	if cfg.Google.FirebaseProjectID != "" {
		s.firebase = NewFirebase(cfg.Google.FirebaseProjectID, "", log)
	}
	return s
}

// Login checks the password against the configured bcrypt hash and returns a token.
func (s *Service) Login(username, password string) (string, *Claims, error) {
	acc, ok := s.accounts[username]
	if !ok {
		s.log.Info("admin login for unknown user", zap.String("username", username))
		return "", nil, errs.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		s.log.Info("admin login rejected", zap.String("username", username))
		return "", nil, errs.ErrUnauthorized
	}
	return s.Issue(acc.Username, acc.Role)
}

func (s *Service) Issue(username, role string) (string, *Claims, error) {
	if role != RoleAdmin && role != RoleFinance && role != RoleUser {
		return "", nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	now := s.now()
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(s.key)
	if err != nil {
		s.log.Error("signing failure", zap.Error(err))
		return "", nil, errs.ErrJWT
	}
	return ss, claims, nil
}

func (s *Service) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			s.log.Debug("parse failure", zap.Error(err))
		}
		return nil, errs.ErrUnauthorized
	}
	return claims, nil
}

// VerifyUser returns the uid a participant token was issued for. With a
// Firebase project configured only Firebase ID tokens are accepted, otherwise
// tokens issued for RoleUser stand in for them.
func (s *Service) VerifyUser(token string) (string, error) {
	if s.firebase != nil {
		return s.firebase.Verify(token)
	}
	claims, err := s.Validate(token)
	if err != nil {
		return "", err
	}
	if claims.Role != RoleUser || claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}

// Allowed reports whether role may use an endpoint open to roles.
func Allowed(role string, roles ...string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// HashPassword is used by the admin CLI to produce ADMIN_ACCOUNTS entries.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
