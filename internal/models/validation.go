package models

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	emailPattern         = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	identificacaoPattern = regexp.MustCompile(`^\d{5}-\d$`)
)

// ValidEmail reports whether email has the shape local@domain.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidIdentificacao reports whether code matches five digits, a dash and one digit.
func ValidIdentificacao(code string) bool {
	return identificacaoPattern.MatchString(code)
}

// ValidCoordinates reports whether lat is in [-90, 90] and lon in [-180, 180].
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ErrInvalidCoords is returned when coordinates cannot be parsed or are out of range.
var ErrInvalidCoords = errors.New("coordinates must be [latitude, longitude] with latitude in [-90, 90] and longitude in [-180, 180]")

// ParseCoords parses "[lat, lon]" (JSON) or "lat,lon" and checks the ranges.
func ParseCoords(raw string) (lat, lon float64, err error) {
	raw = strings.TrimSpace(raw)

	var pair []float64
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &pair); err != nil {
			return 0, 0, ErrInvalidCoords
		}
	} else {
		for _, part := range strings.Split(raw, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return 0, 0, ErrInvalidCoords
			}
			pair = append(pair, v)
		}
	}

	if len(pair) != 2 || !ValidCoordinates(pair[0], pair[1]) {
		return 0, 0, ErrInvalidCoords
	}
	return pair[0], pair[1], nil
}
