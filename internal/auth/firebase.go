package auth

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"startup-spark/internal/errs"
)

const (
	googleCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIssuer = "https://securetoken.google.com/"

	defaultKeyTTL = time.Hour
)

// Firebase verifies the ID tokens the site gets from Firebase Authentication.
type Firebase struct {
	projectID string
	certsURL  string
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func NewFirebase(projectID, certsURL string, log *zap.Logger) *Firebase {
	if certsURL == "" {
		certsURL = googleCertsURL
	}
	return &Firebase{
		projectID: projectID,
		certsURL:  certsURL,
		timeout:   5 * time.Second,
		log:       log,
		now:       time.Now,
	}
}

// Verify checks an ID token and returns the Firebase uid it was issued for.
func (f *Firebase) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, f.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuer+f.projectID),
		jwt.WithAudience(f.projectID),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(f.now),
	)
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			f.log.Debug("id token rejected", zap.Error(err))
		}
		return "", errs.ErrUnauthorized
	}
	if claims.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return claims.Subject, nil
}

func (f *Firebase) keyFor(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.keys == nil || f.now().After(f.expires) {
		if err := f.refresh(); err != nil {
			return nil, err
		}
	}
	key, ok := f.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

// refresh reloads the signing certificates. Callers hold mu.
func (f *Firebase) refresh() error {
	a := fiber.AcquireAgent()
	defer fiber.ReleaseAgent(a)

	res := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(res)

	req := a.Request()
	req.Header.SetMethod(fiber.MethodGet)
	req.SetRequestURI(f.certsURL)
	if err := a.Parse(); err != nil {
		return err
	}

	code, body, errArr := a.SetResponse(res).Timeout(f.timeout).Bytes()
	if len(errArr) != 0 {
		f.log.Error("fetch firebase certs", zap.Error(errArr[0]))
		return errArr[0]
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("firebase certs: status %d", code)
	}

	var certs map[string]string
	if err := json.Unmarshal(body, &certs); err != nil {
		return fmt.Errorf("firebase certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			f.log.Warn("skipping firebase cert", zap.String("kid", kid), zap.Error(err))
			continue
		}
		keys[kid] = key
	}

	f.keys = keys
	f.expires = f.now().Add(maxAge(string(res.Header.Peek(fiber.HeaderCacheControl))))
	f.log.Debug("firebase certs loaded", zap.Int("keys", len(keys)))
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		v, ok := strings.CutPrefix(strings.TrimSpace(part), "max-age=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultKeyTTL
}
