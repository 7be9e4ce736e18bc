package tlsconf

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	cfg, err := ServerConfig(secret)
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	srv.TLS = cfg
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func client(t *testing.T, secret string) *http.Client {
	t.Helper()
	cfg, err := ClientConfig(secret)
	require.NoError(t, err)
	return &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
}

func TestMatchingSecretConnects(t *testing.T) {
	srv := serve(t, "hunter2")

	resp, err := client(t, "hunter2").Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestWrongSecretRejected(t *testing.T) {
	srv := serve(t, "hunter2")

	_, err := client(t, "hunter3").Get(srv.URL)
	require.Error(t, err)
	assert.ErrorContains(t, err, ErrKeyMismatch.Error())
}

func TestKeyIsDeterministic(t *testing.T) {
	a, err := ServerConfig(DefaultSecret)
	require.NoError(t, err)
	b, err := ServerConfig(DefaultSecret)
	require.NoError(t, err)

	certA, err := x509.ParseCertificate(a.Certificates[0].Certificate[0])
	require.NoError(t, err)
	certB, err := x509.ParseCertificate(b.Certificates[0].Certificate[0])
	require.NoError(t, err)

	assert.NotEqual(t, certA.SerialNumber, certB.SerialNumber)
	assert.Equal(t, certA.RawSubjectPublicKeyInfo, certB.RawSubjectPublicKeyInfo)

	pin, err := PinnedKey(DefaultSecret)
	require.NoError(t, err)
	sum := sha256.Sum256(certA.RawSubjectPublicKeyInfo)
	assert.Equal(t, "sha256//"+base64.StdEncoding.EncodeToString(sum[:]), pin)
}
