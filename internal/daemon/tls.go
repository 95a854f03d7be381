package daemon

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/omnish-sh/omnish/internal/omnerr"
)

// LoadOrCreateTLSConfig loads cert.pem/key.pem from dir, generating a
// self-signed ECDSA P-256 certificate on first run. The key file is created
// with owner-only permissions.
func LoadOrCreateTLSConfig(dir string) (*tls.Config, error) {
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		if err := generateSelfSigned(certPath, keyPath); err != nil {
			return nil, err
		}
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, omnerr.New("daemon.LoadOrCreateTLSConfig", omnerr.ConfigInvalid, err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func generateSelfSigned(certPath, keyPath string) error {
	if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "omnish-daemon"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(10, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}

	certOut, err := os.OpenFile(certPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}
	keyOut, err := os.OpenFile(keyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return omnerr.New("daemon.generateSelfSigned", omnerr.ConfigInvalid, err)
	}
	defer keyOut.Close()
	return pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
}
