// Package tlsconf derives the TLS identity of the daemon's TCP listener from
// a shared secret.
//
// The private key is a deterministic function of the secret, so a client
// holding the same secret knows which public key to expect without any
// certificate distribution. The certificate itself is regenerated on every
// start; clients pin the key, never the certificate.
//
//	HKDF-SHA256(ikm=secret, salt="popstash-tls-v1", info="private-key")
//	→ 64 bytes → reduced mod curve order → ECDSA P-256 key
//
// Tools that cannot run Go code can pin the same key with PinnedKey, which
// is in the format curl's --pinnedpubkey accepts.
package tlsconf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/hkdf"
)

// DefaultSecret keys the listener when the daemon has no token. It gives
// encryption but no authentication.
const DefaultSecret = "popstash"

const serverName = "popstash"

// ErrKeyMismatch is returned by the client verifier when the server's key
// was not derived from the client's secret.
var ErrKeyMismatch = errors.New("tlsconf: server public key does not match secret")

// ServerConfig returns a *tls.Config for tls.NewListener.
func ServerConfig(secret string) (*tls.Config, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: derive key: %w", err)
	}
	der, err := selfSignedCert(key)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: cert: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig returns a *tls.Config that accepts only a server whose key
// was derived from secret.
func ClientConfig(secret string) (*tls.Config, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: derive key: %w", err)
	}
	want, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: marshal pubkey: %w", err)
	}
	return &tls.Config{
		// Chain verification is replaced by the key check below.
		InsecureSkipVerify: true, //nolint:gosec
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS13,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("tlsconf: server presented no certificate")
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("tlsconf: parse server cert: %w", err)
			}
			got, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
			if err != nil {
				return fmt.Errorf("tlsconf: marshal server pubkey: %w", err)
			}
			if !bytes.Equal(got, want) {
				return ErrKeyMismatch
			}
			return nil
		},
	}, nil
}

// PinnedKey returns "sha256//<base64 SPKI digest>" for the key derived from
// secret.
func PinnedKey(secret string) (string, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return "", err
	}
	spki, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(spki)
	return "sha256//" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

func deriveKey(secret string) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, []byte(secret), []byte("popstash-tls-v1"), []byte("private-key"))
	buf := make([]byte, 64)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("hkdf read: %w", err)
	}

	curve := elliptic.P256()
	n := curve.Params().N
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, new(big.Int).Sub(n, big.NewInt(1)))
	k.Add(k, big.NewInt(1)) // k ∈ [1, N-1]

	key := new(ecdsa.PrivateKey)
	key.PublicKey.Curve = curve
	key.D = k
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(k.Bytes())
	return key, nil
}

func selfSignedCert(key *ecdsa.PrivateKey) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: serverName},
		DNSNames:              []string{serverName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	return x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
}
