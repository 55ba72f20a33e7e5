package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"regexp"
	"strings"
)

const (
	RegistrationIDPrefix = "SSGC25"
	registrationIDLen    = 12
	registrationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var registrationIDPattern = regexp.MustCompile(`^SSGC25[A-Z0-9]{12}$`)

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizeEmail is the form every email is stored and matched in.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NewRegistrationID returns SSGC25 followed by 12 characters of [A-Z0-9].
func NewRegistrationID() (string, error) {
	b := strings.Builder{}
	b.Grow(len(RegistrationIDPrefix) + registrationIDLen)
	b.WriteString(RegistrationIDPrefix)
	max := big.NewInt(int64(len(registrationAlphabet)))
	for i := 0; i < registrationIDLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(registrationAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func IsRegistrationID(s string) bool {
	return registrationIDPattern.MatchString(s)
}

// ContainsFold is a case-insensitive substring check used by admin search.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
