package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"startup-spark/internal/errs"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "phase1_submissions/SSGC25ABCDEF123456_deck.pdf", ObjectName("SSGC25ABCDEF123456", "deck.pdf"))
	assert.Equal(t, "phase1_submissions/R_deck.pdf", ObjectName("R", `C:\Users\me\deck.pdf`))
	assert.Equal(t, "phase1_submissions/R_deck.pdf", ObjectName("R", "../../deck.pdf"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/b/phase1_submissions/R_my%20deck.pdf",
		PublicURL("b", "phase1_submissions/R_my deck.pdf"))
}

func TestGCSUpload(t *testing.T) {
	var uploaded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/ssgc-files/o")
		body, _ := io.ReadAll(r.Body)
		uploaded = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"phase1_submissions/R_deck.pdf","bucket":"ssgc-files","size":"5"}`))
	}))
	defer srv.Close()

	g, err := NewGCS(context.Background(), "ssgc-files", zap.NewNop(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	u, err := g.Upload(context.Background(), "phase1_submissions/R_deck.pdf", strings.NewReader("hello"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/ssgc-files/phase1_submissions/R_deck.pdf", u)
	assert.Contains(t, uploaded, "hello")
}

func TestGCSUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g, err := NewGCS(context.Background(), "ssgc-files", zap.NewNop(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = g.Upload(context.Background(), "x", strings.NewReader("hello"), "text/plain")
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Upload(context.Background(), "x", strings.NewReader(""), "")
	assert.ErrorIs(t, err, errs.ErrStorage)
}
