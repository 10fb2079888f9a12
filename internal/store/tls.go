package store

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// TLSMode selects how the transport to the store is secured.
type TLSMode string

const (
	// TLSOff uses a plaintext connection.
	TLSOff TLSMode = "off"

	// TLSRelaxed encrypts the connection but does not verify the server
	// certificate chain.
	TLSRelaxed TLSMode = "relaxed"
)

// ProductionEnvironment is the deployment mode that turns on TLSRelaxed.
const ProductionEnvironment = "production"

// ParseTLSMode parses a TLS mode name. The empty string is not a mode.
func ParseTLSMode(s string) (TLSMode, error) {
	switch TLSMode(strings.ToLower(strings.TrimSpace(s))) {
	case TLSOff:
		return TLSOff, nil
	case TLSRelaxed:
		return TLSRelaxed, nil
	default:
		return "", fmt.Errorf("unknown tls mode %q (expected off or relaxed)", s)
	}
}

// TLSModeFor picks the TLS mode for a deployment environment. An explicit
// override wins; otherwise production gets TLSRelaxed and everything else
// TLSOff.
func TLSModeFor(environment, override string) (TLSMode, error) {
	if override != "" {
		return ParseTLSMode(override)
	}
	if strings.EqualFold(environment, ProductionEnvironment) {
		return TLSRelaxed, nil
	}
	return TLSOff, nil
}

// applyTLS rewrites the transport settings of cfg for mode, replacing
// whatever sslmode the connection string asked for.
func applyTLS(cfg *pgconn.Config, mode TLSMode) error {
	switch mode {
	case TLSOff:
		cfg.TLSConfig = nil
	case TLSRelaxed:
		cfg.TLSConfig = &tls.Config{
			ServerName:         cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // relaxed mode skips chain verification on purpose
		}
	default:
		return fmt.Errorf("unknown tls mode %q", mode)
	}
	// Fallbacks would silently retry without TLS (sslmode=prefer).
	cfg.Fallbacks = nil
	return nil
}
