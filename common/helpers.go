package common

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAmountOverflow   = errors.New("amount overflows u64")
	ErrTooManyDecimals  = errors.New("amount has more decimal places than the token")
	ErrNonPositiveValue = errors.New("amount must be positive")
)

var maxRaw = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// ParseUIAmount converts a human readable amount ("1.5") into raw token units
// for a mint with the given decimals.
func ParseUIAmount(s string, decimals uint8) (uint64, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidAmount, s, err)
	}
	if !d.IsPositive() {
		return 0, ErrNonPositiveValue
	}
	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return 0, ErrTooManyDecimals
	}
	if raw.GreaterThan(maxRaw) {
		return 0, ErrAmountOverflow
	}
	return raw.BigInt().Uint64(), nil
}

// FormatUIAmount is the inverse of ParseUIAmount. Trailing zeros are dropped.
func FormatUIAmount(raw uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
	return d.String()
}

// ContentExtension returns the extension used in public URLs of uploaded
// images, or "" for other content.
func ContentExtension(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	}
	return ""
}
