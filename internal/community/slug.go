package community

import (
	"math"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength caps each slug segment of a derived id.
const MaxSlugLength = 48

// Fallback segments used when the corresponding input is empty.
const (
	fallbackName     = "condominio"
	fallbackAddress  = "sin-direccion"
	fallbackLocation = "sin-mapa"
)

// Slugify lowercases s, strips diacritics, collapses every run of characters
// outside [a-z0-9] into a single '-', trims leading and trailing '-' and caps
// the result at MaxSlugLength bytes.
func Slugify(s string) string {
	lower := strings.ToLower(s)
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), lower)
	if err != nil {
		folded = lower
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	for i := 0; i < len(folded); i++ {
		c := folded[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteByte(c)
			continue
		}
		pendingDash = true
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
	}
	return slug
}

// DeriveID returns the explicit id of in when present, otherwise an id built
// from the slugged name and address and the coordinates rounded to four
// decimals.
func DeriveID(in Input) string {
	if in.ID != nil {
		if id := strings.TrimSpace(*in.ID); id != "" {
			return id
		}
	}
	return deriveID(deref(in.Name), deref(in.Address), in.Latitude.Value, in.Longitude.Value)
}

func deriveID(name, address string, lat, lng *float64) string {
	nameSlug := Slugify(name)
	if nameSlug == "" {
		nameSlug = fallbackName
	}
	addressSlug := Slugify(address)
	if addressSlug == "" {
		addressSlug = fallbackAddress
	}
	location := fallbackLocation
	if lat != nil && lng != nil {
		location = fixed4(*lat) + "_" + fixed4(*lng)
	}
	return nameSlug + "_" + addressSlug + "_" + location
}

// fixed4 formats v with four decimals the way browser clients do: exact
// halves round away from zero and -0 prints as 0.0000.
func fixed4(v float64) string {
	if v == 0 {
		return "0.0000"
	}
	scaled := new(big.Float).SetPrec(256).SetFloat64(math.Abs(v))
	scaled.Mul(scaled, big.NewFloat(10000))
	n, _ := scaled.Int(nil)
	frac := new(big.Float).SetPrec(256).Sub(scaled, new(big.Float).SetInt(n))
	if frac.Cmp(big.NewFloat(0.5)) >= 0 {
		n.Add(n, big.NewInt(1))
	}

	digits := n.String()
	if len(digits) < 5 {
		digits = strings.Repeat("0", 5-len(digits)) + digits
	}
	out := digits[:len(digits)-4] + "." + digits[len(digits)-4:]
	if v < 0 {
		out = "-" + out
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
