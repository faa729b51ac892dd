package carsensor

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// manUnit is the value of 万, the ten-thousand unit used for prices and mileages.
	manUnit = 10000

	maxPrice = 100_000_000
	minYear  = 1900
)

var (
	manPriceRegexp = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*万`)
	yenPriceRegexp = regexp.MustCompile(`([0-9][0-9,]*)\s*円`)
	mileageRegexp  = regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]+)?)\s*(万)?\s*km`)
	yearRegexp     = regexp.MustCompile(`\d{4}`)

	detailIDRegexp   = regexp.MustCompile(`/detail/([A-Za-z0-9]+)`)
	trailingIDRegexp = regexp.MustCompile(`/([A-Z0-9]+)/?(?:index\.html)?$`)
)

// parsePrice converts a price label into whole yen. The 万 form is scaled
// by 10,000 and rounded. Out-of-range values are rejected.
func parsePrice(raw string) (int64, bool) {
	raw = toHalfWidth(raw)

	var yen float64
	if m := manPriceRegexp.FindStringSubmatch(raw); m != nil {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, false
		}
		yen = math.Round(f * manUnit)
	} else if m := yenPriceRegexp.FindStringSubmatch(raw); m != nil {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, false
		}
		yen = f
	} else {
		return 0, false
	}

	if yen <= 0 || yen >= maxPrice {
		return 0, false
	}
	return int64(yen), true
}

// parseMileage converts "12km" or "1.8万km" into kilometres.
func parseMileage(raw string) (int, bool) {
	m := mileageRegexp.FindStringSubmatch(toHalfWidth(raw))
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	if m[2] != "" {
		f *= manUnit
	}
	return int(math.Round(f)), true
}

// parseYear takes the first 4-digit run, so "2025(R07)年" yields 2025.
func parseYear(raw string) (int, bool) {
	m := yearRegexp.FindString(toHalfWidth(raw))
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	if y < minYear || y > time.Now().Year()+1 {
		return 0, false
	}
	return y, true
}

func parseTransmission(raw string) (string, bool) {
	s := strings.ToUpper(toHalfWidth(raw))
	switch {
	case strings.Contains(s, "CVT"):
		return "CVT", true
	// automatics often advertise a manual mode: フロアAT(マニュアルモード付)
	case strings.Contains(s, "AT") || strings.Contains(s, "オートマ") || strings.Contains(s, "マニュアルモード"):
		return "AT", true
	case strings.Contains(s, "MT") || strings.Contains(s, "マニュアル"):
		return "MT", true
	}
	return "", false
}

var fuelKeywords = []struct {
	keywords []string
	label    string
}{
	{[]string{"ハイブリッド", "HYBRID", "HV"}, "Hybrid"},
	{[]string{"ディーゼル", "DIESEL"}, "Diesel"},
	{[]string{"電気", "EV", "ELECTRIC"}, "Electric"},
	{[]string{"ガソリン", "GASOLINE", "レギュラー", "ハイオク"}, "Gasoline"},
}

func parseFuelType(raw string) (string, bool) {
	s := strings.ToUpper(toHalfWidth(raw))
	for _, fk := range fuelKeywords {
		for _, kw := range fk.keywords {
			if strings.Contains(s, kw) {
				return fk.label, true
			}
		}
	}
	return "", false
}

// extractID derives the external id from a detail link,
// e.g. /usedcar/detail/AU6757636162/index.html gives AU6757636162.
func extractID(href string) (string, bool) {
	if m := detailIDRegexp.FindStringSubmatch(href); m != nil {
		return m[1], true
	}
	if u, err := url.Parse(href); err == nil {
		if m := trailingIDRegexp.FindStringSubmatch(u.Path); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// resolveURL makes relative and protocol-relative links absolute against base.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

// toHalfWidth folds full-width ASCII (Ａ-Ｚ, ０-９, ．, ，) to half-width.
func toHalfWidth(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0xFF01 && r <= 0xFF5E {
			return r - 0xFEE0
		}
		if r == 0x3000 {
			return ' '
		}
		return r
	}, s)
}

// normaliseText trims and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
