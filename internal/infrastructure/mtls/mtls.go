// Package mtls builds the mutual-TLS context for the LEAP session from
// pre-provisioned certificate files.
//
// Pairing with the bridge (obtaining the client key/certificate and the
// bridge CA) happens outside this program; this package only loads the
// resulting files. The session core receives a ready *tls.Config and never
// touches certificate material itself.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
)

// Domain errors for TLS context construction.
var (
	// ErrLoadKeyPair is returned when the client certificate/key pair
	// cannot be loaded.
	ErrLoadKeyPair = errors.New("mtls: loading client key pair failed")

	// ErrLoadCA is returned when the bridge CA certificate cannot be
	// loaded or parsed.
	ErrLoadCA = errors.New("mtls: loading bridge CA failed")
)

// Load builds a *tls.Config from the configured certificate paths.
//
// The bridge presents a self-signed certificate rooted in its own CA and
// does not carry the hostname clients dial, so ordinary hostname
// verification cannot be used. Instead the chain is verified manually
// against the bridge CA pool via VerifyPeerCertificate, which is the
// standard pattern for this kind of appliance TLS.
//
// Parameters:
//   - cfg: Bridge configuration carrying key_file, cert_file and ca_file
//
// Returns:
//   - *tls.Config: Mutual-TLS context ready for leap.Dial
//   - error: If any certificate file is missing or malformed
func Load(cfg config.BridgeConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadKeyPair, err)
	}

	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCA, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: no certificates found in %s", ErrLoadCA, cfg.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,

		// Hostname verification is replaced by manual chain verification
		// against the bridge CA; see VerifyPeerCertificate below.
		InsecureSkipVerify:    true, // #nosec G402
		VerifyPeerCertificate: verifyAgainstPool(pool),
	}, nil
}

// verifyAgainstPool returns a VerifyPeerCertificate callback that checks
// the presented chain against the bridge CA pool, ignoring hostnames.
func verifyAgainstPool(pool *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: peer presented no certificate", ErrLoadCA)
		}

		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("mtls: parsing peer certificate: %w", err)
		}

		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("mtls: parsing peer intermediate: %w", err)
			}
			intermediates.AddCert(cert)
		}

		_, err = leaf.Verify(x509.VerifyOptions{
			Roots:         pool,
			Intermediates: intermediates,
		})
		if err != nil {
			return fmt.Errorf("mtls: bridge certificate not trusted: %w", err)
		}
		return nil
	}
}
