package migrate

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Endpoint is the identity of one PostgreSQL endpoint: host, port, database
// and user. Query parameters (TLS settings and the like) are deliberately
// not part of identity.
type Endpoint struct {
	Host     string
	Port     uint16
	Database string
	User     string
}

// ParseEndpoint extracts endpoint identity from a connection URL. Hostnames
// are case-insensitive; defaults (port 5432 and friends) are resolved the
// same way the driver resolves them.
func ParseEndpoint(url string) (Endpoint, error) {
	if err := ValidateURL(url); err != nil {
		return Endpoint{}, err
	}
	cfg, err := pgconn.ParseConfig(url)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse connection url: %w", err)
	}
	return Endpoint{
		Host:     strings.ToLower(cfg.Host),
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
	}, nil
}

// Hash returns a stable digest of the endpoint identity for checkpoint
// matching.
func (e Endpoint) Hash() string {
	h := sha256.New()
	var buf [8]byte
	for _, f := range []string{e.Host, fmt.Sprint(e.Port), e.Database, e.User} {
		binary.BigEndian.PutUint64(buf[:], uint64(len(f)))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateURL rejects connection strings that are not PostgreSQL URLs.
func ValidateURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("connection url is empty")
	}
	if !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") {
		return fmt.Errorf("connection url must start with postgres:// or postgresql://, got %q", url)
	}
	return nil
}

// SameEndpoint guards against running a destructive migration onto its own
// source: identical endpoints would make the target overwrite the source.
func SameEndpoint(sourceURL, targetURL string) error {
	src, err := ParseEndpoint(sourceURL)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	tgt, err := ParseEndpoint(targetURL)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if src == tgt {
		return fmt.Errorf(
			"source and target point to the same database (%s@%s:%d/%s), refusing to continue",
			src.User, src.Host, src.Port, src.Database)
	}
	return nil
}

// ReplaceDatabase swaps the database name in a connection URL, keeping query
// parameters intact.
func ReplaceDatabase(url, database string) (string, error) {
	if err := ValidateURL(url); err != nil {
		return "", err
	}
	base, params, hasParams := strings.Cut(url, "?")

	slash := strings.LastIndex(base, "/")
	// the scheme's "//" must not count as the database separator
	if slash <= strings.Index(base, "//")+1 {
		return "", fmt.Errorf("connection url %q has no database to replace", url)
	}

	out := base[:slash+1] + database
	if hasParams {
		out += "?" + params
	}
	return out, nil
}
