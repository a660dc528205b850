package currency

import (
	"context"
	"math"
	"strings"
)

// zeroDecimal and threeDecimal list the ISO 4217 currencies whose minor unit
// is not the usual two decimals.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true,
	"ISK": true, "JPY": true, "KMF": true, "KRW": true,
	"PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

var threeDecimal = map[string]bool{
	"BHD": true, "IQD": true, "JOD": true, "KWD": true,
	"LYD": true, "OMR": true, "TND": true,
}

// Exponent returns the decimal exponent for a currency code. Unknown codes
// default to 2. Case-insensitive.
func Exponent(code string) int {
	upper := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case zeroDecimal[upper]:
		return 0
	case threeDecimal[upper]:
		return 3
	default:
		return 2
	}
}

// Multiplier returns 10^Exponent(code).
func Multiplier(code string) int64 {
	m := int64(1)
	for i := 0; i < Exponent(code); i++ {
		m *= 10
	}
	return m
}

// RescaleMinorUnits converts minor units computed under the extractor's
// two-decimal assumption into the currency's true exponent. JPY 1999 scraped
// as "19.99" stays 1999 only if the exponent really is 2; at exponent 0 the
// canonical value is 20.
func RescaleMinorUnits(minorAtTwoDecimals int64, code string) int64 {
	mult := Multiplier(code)
	if mult == 100 {
		return minorAtTwoDecimals
	}
	return int64(math.Round(float64(minorAtTwoDecimals) * float64(mult) / 100))
}

// RateLookup resolves the latest exchange rate for a currency pair, preferring
// a manually entered rate over an api-sourced one. A (0, nil) style miss is
// signalled by ok=false.
type RateLookup interface {
	FindRate(ctx context.Context, from, to string) (rate float64, ok bool, err error)
}

// Normalizer converts scraped prices into the user's preferred currency.
type Normalizer struct {
	rates     RateLookup
	preferred string
}

func NewNormalizer(rates RateLookup, preferredCurrency string) *Normalizer {
	return &Normalizer{
		rates:     rates,
		preferred: strings.ToUpper(preferredCurrency),
	}
}

func (n *Normalizer) PreferredCurrency() string {
	return n.preferred
}

// Normalize converts minor units in the scraped currency to minor units in
// the preferred currency. ok is false when no rate is resolvable; that is a
// normal outcome, not an error.
func (n *Normalizer) Normalize(ctx context.Context, minor int64, from string) (int64, bool, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	if from == "" || n.preferred == "" {
		return 0, false, nil
	}
	if from == n.preferred {
		return minor, true, nil
	}

	rate, ok, err := n.rates.FindRate(ctx, from, n.preferred)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}

	// Convert through major units so differing exponents are handled.
	major := float64(minor) / float64(Multiplier(from))
	converted := major * rate
	return int64(math.Round(converted * float64(Multiplier(n.preferred)))), true, nil
}
