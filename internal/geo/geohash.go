// Package geo provides coordinate validation and geohash encoding used to
// place communities on a map at a coarse, privacy-preserving resolution.
package geo

import (
	"math"
	"strings"
)

// DefaultPrecision is the geohash length used for map markers. Six
// characters is a cell of roughly 1.2 km x 0.6 km.
const DefaultPrecision = 6

// MaxPrecision is the longest geohash Encode produces.
const MaxPrecision = 12

// base32 is the geohash alphabet (no a, i, l, o).
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// ValidCoordinates reports whether lat/lng are finite and within the WGS84
// ranges [-90, 90] and [-180, 180].
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ClampPrecision maps precision into [1, MaxPrecision]; values below 1 select
// DefaultPrecision.
func ClampPrecision(precision int) int {
	switch {
	case precision < 1:
		return DefaultPrecision
	case precision > MaxPrecision:
		return MaxPrecision
	default:
		return precision
	}
}

// Encode returns the geohash of lat/lng with the given length. Bits alternate
// longitude then latitude, five bits per base32 character. Out-of-range
// coordinates are clamped to the edge of the world.
func Encode(lat, lng float64, precision int) string {
	precision = ClampPrecision(precision)
	lat = math.Max(-90, math.Min(90, lat))
	lng = math.Max(-180, math.Min(180, lng))

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var out strings.Builder
	out.Grow(precision)

	evenBit := true
	for out.Len() < precision {
		var idx byte
		for bit := 4; bit >= 0; bit-- {
			if evenBit {
				mid := (lngLo + lngHi) / 2
				if lng > mid {
					idx |= 1 << bit
					lngLo = mid
				} else {
					lngHi = mid
				}
			} else {
				mid := (latLo + latHi) / 2
				if lat > mid {
					idx |= 1 << bit
					latLo = mid
				} else {
					latHi = mid
				}
			}
			evenBit = !evenBit
		}
		out.WriteByte(base32[idx])
	}
	return out.String()
}
