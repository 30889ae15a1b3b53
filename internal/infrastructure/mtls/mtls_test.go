package mtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
)

// writeTestIdentity generates a throwaway CA plus client key pair and
// writes them as PEM files, returning a populated bridge config.
func writeTestIdentity(t *testing.T) config.BridgeConfig {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating CA key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-bridge-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating CA certificate: %v", err)
	}

	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating client key: %v", err)
	}
	clientTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	clientDER, err := x509.CreateCertificate(rand.Reader, clientTmpl, caTmpl, &clientKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating client certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(clientKey)
	if err != nil {
		t.Fatalf("marshaling client key: %v", err)
	}

	cfg := config.BridgeConfig{
		CertFile: filepath.Join(dir, "client.crt"),
		KeyFile:  filepath.Join(dir, "client.key"),
		CAFile:   filepath.Join(dir, "ca.crt"),
	}
	writePEM(t, cfg.CAFile, "CERTIFICATE", caDER)
	writePEM(t, cfg.CertFile, "CERTIFICATE", clientDER)
	writePEM(t, cfg.KeyFile, "EC PRIVATE KEY", keyDER)
	return cfg
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	cfg := writeTestIdentity(t)

	tlsCfg, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Errorf("Certificates len = %d, want 1", len(tlsCfg.Certificates))
	}
	if tlsCfg.VerifyPeerCertificate == nil {
		t.Error("VerifyPeerCertificate not set")
	}
	if tlsCfg.MinVersion != 0x0303 { // TLS 1.2
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsCfg.MinVersion)
	}
}

func TestLoadMissingKeyPair(t *testing.T) {
	cfg := writeTestIdentity(t)
	cfg.CertFile = filepath.Join(t.TempDir(), "missing.crt")

	_, err := Load(cfg)
	if !errors.Is(err, ErrLoadKeyPair) {
		t.Errorf("Load error = %v, want ErrLoadKeyPair", err)
	}
}

func TestLoadBadCA(t *testing.T) {
	cfg := writeTestIdentity(t)
	if err := os.WriteFile(cfg.CAFile, []byte("not a certificate"), 0600); err != nil {
		t.Fatalf("writing bad CA: %v", err)
	}

	_, err := Load(cfg)
	if !errors.Is(err, ErrLoadCA) {
		t.Errorf("Load error = %v, want ErrLoadCA", err)
	}
}
