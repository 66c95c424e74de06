package blobstore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func TestSigningKey_RestoresNewlines(t *testing.T) {
	got := signingKey(`-----BEGIN KEY-----\nabc\n-----END KEY-----`)
	assert.Equal(t, "-----BEGIN KEY-----\nabc\n-----END KEY-----", string(got))
}

func TestGCS_SignDownload(t *testing.T) {
	// Escape the newlines the way an env var would carry them.
	escaped := strings.ReplaceAll(testKeyPEM(t), "\n", `\n`)
	g := &GCS{bucket: "shares", accessID: "svc@project.iam.gserviceaccount.com", privateKey: signingKey(escaped)}

	raw, err := g.Sign(context.Background(), "p1/report.pdf", time.Hour, true)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Contains(t, u.Path, "p1/report.pdf")

	q := u.Query()
	assert.NotEmpty(t, q.Get("X-Goog-Signature"))
	assert.Equal(t, "3600", q.Get("X-Goog-Expires"))
	assert.Equal(t, `attachment; filename="report.pdf"`, q.Get("response-content-disposition"))
}

func TestGCS_SignUpload(t *testing.T) {
	g := &GCS{bucket: "shares", accessID: "svc@project.iam.gserviceaccount.com", privateKey: []byte(testKeyPEM(t))}

	raw, err := g.SignUpload(context.Background(), "p1/a.txt", time.Minute, "text/plain")
	require.NoError(t, err)
	assert.Contains(t, raw, "X-Goog-Signature")
	assert.NotContains(t, raw, "response-content-disposition")
}

func TestGCS_SignWithoutKeyFails(t *testing.T) {
	g := &GCS{bucket: "shares", accessID: "svc@project.iam.gserviceaccount.com"}

	_, err := g.Sign(context.Background(), "p1/a.txt", time.Minute, false)
	require.Error(t, err)
}

func TestMapGCSErr(t *testing.T) {
	assert.ErrorIs(t, mapGCSErr(storage.ErrObjectNotExist), ErrNotFound)
	other := errors.New("permission denied")
	assert.Equal(t, other, mapGCSErr(other))
}
