package carsensor

import (
	"strconv"
	"testing"
	"time"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{"271.9万円", 2719000, true},
		{"支払総額 190.9万円", 1909000, true},
		{"236.5万円", 2365000, true},
		{"１２３．４万円", 1234000, true},
		{"1,234.5万円", 12345000, true},
		{"980,000円", 980000, true},
		{"応談", 0, false},
		{"0万円", 0, false},
		{"10000万円", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parsePrice(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parsePrice(%q) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"12km", 12, true},
		{"1.8万km", 18000, true},
		{"1.4万km", 14000, true},
		{"12,500 km", 12500, true},
		{"５ｋｍ", 5, true},
		{"不明", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseMileage(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseMileage(%q) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseYear(t *testing.T) {
	next := time.Now().Year() + 1

	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"2025(R07)年", 2025, true},
		{"H30(2018)年", 2018, true},
		{"1899年", 0, false},
		{strconv.Itoa(next) + "年", next, true},
		{strconv.Itoa(next+1) + "年", 0, false},
		{"年式不明", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseYear(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseYear(%q) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseTransmissionAndFuel(t *testing.T) {
	trans := map[string]string{
		"AT":     "AT",
		"フロアAT": "AT",
		"CVT":    "CVT",
		"5MT":    "MT",
		"マニュアル":  "MT",
	}
	for raw, want := range trans {
		if got, _ := parseTransmission(raw); got != want {
			t.Errorf("parseTransmission(%q) = %q; want %q", raw, got, want)
		}
	}

	// automatics that advertise a manual shift mode
	for _, tt := range []struct{ in, want string }{
		{"フロアAT(マニュアルモード付)", "AT"},
		{"インパネCVT(マニュアルモード付)", "CVT"},
		{"コラムAT", "AT"},
		{"フロア6MT", "MT"},
	} {
		if got, _ := parseTransmission(tt.in); got != tt.want {
			t.Errorf("parseTransmission(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}

	fuel := map[string]string{
		"ハイブリッド":   "Hybrid",
		"ガソリン":     "Gasoline",
		"軽油 ディーゼル": "Diesel",
		"電気":       "Electric",
	}
	for raw, want := range fuel {
		if got, _ := parseFuelType(raw); got != want {
			t.Errorf("parseFuelType(%q) = %q; want %q", raw, got, want)
		}
	}
	if _, ok := parseFuelType("不明"); ok {
		t.Error("unknown fuel should not parse")
	}
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/usedcar/detail/AU6757636162/index.html", "AU6757636162"},
		{"https://www.carsensor.net/usedcar/detail/AU6723842884/", "AU6723842884"},
		{"https://example.com/cars/AB123/index.html", "AB123"},
	}
	for _, tt := range tests {
		got, ok := extractID(tt.href)
		if !ok || got != tt.want {
			t.Errorf("extractID(%q) = %q, %v; want %q", tt.href, got, ok, tt.want)
		}
	}
	if _, ok := extractID("/usedcar/search.php?page=1"); ok {
		t.Error("search URL should not yield an id")
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://www.carsensor.net/usedcar/search.php?page=1"
	tests := []struct {
		ref  string
		want string
	}{
		{"//ccsrpcma.carsensor.net/a.JPG", "https://ccsrpcma.carsensor.net/a.JPG"},
		{"/usedcar/detail/AU1/index.html", "https://www.carsensor.net/usedcar/detail/AU1/index.html"},
		{"https://cdn.example.com/x.jpg", "https://cdn.example.com/x.jpg"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := resolveURL(base, tt.ref); got != tt.want {
			t.Errorf("resolveURL(%q) = %q; want %q", tt.ref, got, tt.want)
		}
	}
}
