package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Normalizer turns the text of a counter element into a column value.
type Normalizer interface {
	Normalize(text string) (string, bool)
}

// SuffixCounter matches "digits [thousands separators] [decimal part]
// [K|M]" and expands it to a plain integer. The separators are
// locale-dependent, so "1.234" is 1234 with an EU locale and 1 with an
// English one.
type SuffixCounter struct {
	Thousands string
	Decimal   string
	// Raw keeps the matched token ("12.3K") instead of expanding it.
	Raw bool

	pattern *regexp.Regexp
}

// NewSuffixCounter compiles the pattern for the given separators.
func NewSuffixCounter(thousands, decimal string, raw bool) *SuffixCounter {
	t, d := regexp.QuoteMeta(thousands), regexp.QuoteMeta(decimal)
	return &SuffixCounter{
		Thousands: thousands,
		Decimal:   decimal,
		Raw:       raw,
		pattern:   regexp.MustCompile(`(\d[\d` + t + `]*(?:` + d + `\d+)?)([KkMm]?)`),
	}
}

// NormalizerFor returns the counter for a COUNTER_LOCALE value: "raw"
// (the default; English pattern, token kept as displayed), "en" (1,234.5
// expanded to an integer) or "eu" (1.234,5 expanded).
func NormalizerFor(locale string) (Normalizer, error) {
	switch strings.ToLower(locale) {
	case "", "raw":
		return NewSuffixCounter(",", ".", true), nil
	case "en":
		return NewSuffixCounter(",", ".", false), nil
	case "eu":
		return NewSuffixCounter(".", ",", false), nil
	default:
		return nil, fmt.Errorf("unknown counter locale %q", locale)
	}
}

// Normalize implements Normalizer.
func (c *SuffixCounter) Normalize(text string) (string, bool) {
	m := c.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	number, suffix := m[1], m[2]
	if c.Raw {
		return number + suffix, true
	}

	number = strings.ReplaceAll(number, c.Thousands, "")
	number = strings.Replace(number, c.Decimal, ".", 1)
	v, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return "", false
	}
	switch suffix {
	case "K", "k":
		v *= 1e3
	case "M", "m":
		v *= 1e6
	}
	return strconv.FormatInt(int64(math.Round(v)), 10), true
}
