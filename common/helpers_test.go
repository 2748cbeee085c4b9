package common

import (
	"encoding/json"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestAddressEncoding(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 10; i++ {
		var addr Address
		f.Fuzz(&addr)
		gotAddr, err := AddressFromString(addr.String())
		require.NoError(t, err)
		require.Equal(t, addr, gotAddr)

		js, err := json.Marshal(addr)
		require.NoError(t, err)
		var decoded Address
		require.NoError(t, json.Unmarshal(js, &decoded))
		require.Equal(t, addr, decoded)
	}
}

func TestAddressFromStringInvalid(t *testing.T) {
	_, err := AddressFromString("0OIl")
	require.Error(t, err)
	_, err = AddressFromString("3yZe7d")
	require.ErrorContains(t, err, "invalid length")
}

func TestUIAmountRoundTrip(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 50; i++ {
		var raw uint64
		var decimals uint8
		f.Fuzz(&raw)
		f.Fuzz(&decimals)
		decimals %= 10
		if raw == 0 {
			raw = 1
		}
		ui := FormatUIAmount(raw, decimals)
		got, err := ParseUIAmount(ui, decimals)
		require.NoError(t, err, "ui amount %s", ui)
		require.Equal(t, raw, got)
	}
}

func TestParseUIAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		raw      uint64
		err      error
	}{
		{in: "1", decimals: 9, raw: 1_000_000_000},
		{in: "1.5", decimals: 2, raw: 150},
		{in: " 42 ", decimals: 0, raw: 42},
		{in: "0.001", decimals: 3, raw: 1},
		{in: "0.0001", decimals: 3, err: ErrTooManyDecimals},
		{in: "0", decimals: 3, err: ErrNonPositiveValue},
		{in: "-1", decimals: 3, err: ErrNonPositiveValue},
		{in: "abc", decimals: 3, err: ErrInvalidAmount},
		{in: "18446744073709551615", decimals: 0, raw: 18446744073709551615},
		{in: "18446744073709551616", decimals: 0, err: ErrAmountOverflow},
		{in: "18446744073.709551616", decimals: 9, err: ErrAmountOverflow},
	}
	for _, tc := range cases {
		raw, err := ParseUIAmount(tc.in, tc.decimals)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.raw, raw, tc.in)
	}
}

func TestContentExtension(t *testing.T) {
	require.Equal(t, "png", ContentExtension("image/png"))
	require.Equal(t, "jpg", ContentExtension("IMAGE/JPEG"))
	require.Equal(t, "svg", ContentExtension("image/svg+xml; charset=utf-8"))
	require.Equal(t, "", ContentExtension("application/json"))
}
