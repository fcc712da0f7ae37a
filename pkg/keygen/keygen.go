package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// codeCharset deliberately drops the ambiguous characters 0, O, 1 and I so
// subscribers can read codes over the phone.
const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// CodeLength is the number of charset characters in a redemption code,
	// before grouping.
	CodeLength = 16

	codeGroupSize = 4

	deviceKeyMin = 10_000_000
	deviceKeyMax = 99_999_999
)

// RedemptionCode returns a fresh code in XXXX-XXXX-XXXX-XXXX form.
func RedemptionCode() (string, error) {
	raw := make([]byte, CodeLength)
	for i := range raw {
		idx, err := randInt(len(codeCharset))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		raw[i] = codeCharset[idx]
	}

	groups := make([]string, 0, CodeLength/codeGroupSize)
	for i := 0; i < CodeLength; i += codeGroupSize {
		groups = append(groups, string(raw[i:i+codeGroupSize]))
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeCode uppercases a user-supplied redemption code and strips
// surrounding whitespace so lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DeviceKey returns an 8-digit numeric key shown on the TV screen during
// pairing. The leading digit is never zero.
func DeviceKey() (string, error) {
	span := deviceKeyMax - deviceKeyMin + 1
	n, err := randInt(span)
	if err != nil {
		return "", fmt.Errorf("generate device key: %w", err)
	}
	return fmt.Sprintf("%d", deviceKeyMin+n), nil
}

// Username derives a provisioned account name. The timestamp keeps names
// roughly sortable; the random suffix resolves same-millisecond collisions.
func Username() (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate username: %w", err)
	}
	return fmt.Sprintf("user_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(suffix)), nil
}

// Password produces a random alphanumeric credential of the given length.
func Password(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	result := make([]byte, length)
	for i := range result {
		idx, err := randInt(len(charset))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		result[i] = charset[idx]
	}
	return string(result), nil
}

func randInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("invalid max %d", max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
