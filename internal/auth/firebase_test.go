package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
)

type certServer struct {
	key  *rsa.PrivateKey
	hits atomic.Int32
	url  string
}

func newCertServer(t *testing.T) *certServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	certs, err := json.Marshal(map[string]string{
		"k1": string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
	})
	require.NoError(t, err)

	cs := &certServer{key: key}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600, must-revalidate")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(certs)
	}))
	t.Cleanup(srv.Close)
	cs.url = srv.URL
	return cs
}

func (cs *certServer) sign(t *testing.T, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(cs.key)
	require.NoError(t, err)
	return s
}

func idClaims(project, uid string, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    firebaseIssuer + project,
		Audience:  jwt.ClaimStrings{project},
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestFirebaseVerify(t *testing.T) {
	cs := newCertServer(t)
	f := NewFirebase("ssgc", cs.url, zap.NewNop())
	now := time.Now()

	uid, err := f.Verify(cs.sign(t, "k1", idClaims("ssgc", "uid-1", now)))
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	uid, err = f.Verify(cs.sign(t, "k1", idClaims("ssgc", "uid-2", now)))
	require.NoError(t, err)
	assert.Equal(t, "uid-2", uid)
	assert.Equal(t, int32(1), cs.hits.Load(), "certs are cached for max-age")

	f.now = func() time.Time { return now.Add(11 * time.Minute) }
	_, err = f.Verify(cs.sign(t, "k1", idClaims("ssgc", "uid-3", now)))
	require.NoError(t, err)
	assert.Equal(t, int32(2), cs.hits.Load())
}

func TestFirebaseVerifyRejects(t *testing.T) {
	cs := newCertServer(t)
	f := NewFirebase("ssgc", cs.url, zap.NewNop())
	now := time.Now()

	expired := idClaims("ssgc", "uid-1", now)
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noSubject := idClaims("ssgc", "", now)

	cases := map[string]string{
		"other project": cs.sign(t, "k1", idClaims("someone-else", "uid-1", now)),
		"unknown kid":   cs.sign(t, "k9", idClaims("ssgc", "uid-1", now)),
		"expired":       cs.sign(t, "k1", expired),
		"no subject":    cs.sign(t, "k1", noSubject),
		"garbage":       "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.Verify(token)
			assert.ErrorIs(t, err, errs.ErrUnauthorized)
		})
	}

	// A shared-secret user token is not a Firebase token.
	hs := newService(t)
	hsToken, _, err := hs.Issue("uid-1", RoleUser)
	require.NoError(t, err)
	_, err = f.Verify(hsToken)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestServiceUsesFirebaseWhenConfigured(t *testing.T) {
	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-key"
	cfg.Auth.JWTTTL = time.Hour
	cfg.Google.FirebaseProjectID = "ssgc"
	s := New(cfg, zap.NewNop())
	require.NotNil(t, s.firebase)

	cs := newCertServer(t)
	s.firebase.certsURL = cs.url

	uid, err := s.VerifyUser(cs.sign(t, "k1", idClaims("ssgc", "uid-1", time.Now())))
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	hsToken, _, err := s.Issue("uid-1", RoleUser)
	require.NoError(t, err)
	_, err = s.VerifyUser(hsToken)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 600*time.Second, maxAge("public, max-age=600, must-revalidate"))
	assert.Equal(t, defaultKeyTTL, maxAge("no-cache"))
	assert.Equal(t, defaultKeyTTL, maxAge(""))
}
