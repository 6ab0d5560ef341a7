// Package provenance implements component L: signing a compact attestation
// of a packaged archive's manifest so a distributing party can verify which
// pipeline run produced it without re-deriving the whole closure.
package provenance

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manifest is the subset of a completed Package result worth attesting to.
type Manifest struct {
	MapName     string
	ArchivePath string
	Digest      string // hex-encoded content digest of the written archive
	FileCount   int
	BuiltAt     time.Time
}

type claims struct {
	jwt.RegisteredClaims
	MapName   string `json:"map_name"`
	Digest    string `json:"digest"`
	FileCount int    `json:"file_count"`
}

// Sign produces a compact JWT over m, signed with key (HMAC-SHA256).
func Sign(m Manifest, key []byte) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(m.BuiltAt),
			Subject:  m.ArchivePath,
		},
		MapName:   m.MapName,
		Digest:    m.Digest,
		FileCount: m.FileCount,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign provenance token: %w", err)
	}
	return signed, nil
}

// Verify recovers and validates a token produced by Sign, returning its
// claims as a Manifest (BuiltAt populated from the token's issued-at).
func Verify(token string, key []byte) (Manifest, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("verify provenance token: %w", err)
	}
	if !parsed.Valid {
		return Manifest{}, fmt.Errorf("provenance token failed validation")
	}

	m := Manifest{
		MapName:     c.MapName,
		ArchivePath: c.Subject,
		Digest:      c.Digest,
		FileCount:   c.FileCount,
	}
	if c.IssuedAt != nil {
		m.BuiltAt = c.IssuedAt.Time
	}
	return m, nil
}
