package importer

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"PT24H45M", 24*time.Hour + 45*time.Minute, true},
		{"PT20M", 20 * time.Minute, true},
		{"PT1H", time.Hour, true},
		{"PT90S", 90 * time.Second, true},
		{"00:30:00", 30 * time.Minute, true},
		{"1:05:30", time.Hour + 5*time.Minute + 30*time.Second, true},
		{"PT", 0, false},
		{"", 0, false},
		{"NA", 0, false},
		{"twenty minutes", 0, false},
		{"30:00", 0, false},
	}
	for _, tt := range tests {
		got := ParseDuration(tt.in)
		if !tt.ok {
			if got != nil {
				t.Errorf("ParseDuration(%q) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSafeDecimal(t *testing.T) {
	def := decimal.RequireFromString("0.0")
	tests := []struct {
		in   string
		want string
	}{
		{"170.9", "170.9"},
		{"12.25", "12.3"},
		{"-12.25", "-12.3"},
		{"0.04", "0"},
		{"1e3", "1000"},
		{"2.5E-1", "0.3"},
		{"1234567.89", "999999.9"},
		{"-5e9", "-999999.9"},
		{"nan", "0"},
		{"NaN", "0"},
		{"inf", "0"},
		{"-Infinity", "0"},
		{"", "0"},
		{"abc", "0"},
		{"1,234.56", "1234.6"},
		{" 42 g", "42"},
	}
	for _, tt := range tests {
		got := SafeDecimal(tt.in, def)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("SafeDecimal(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSafeDecimalBoundsAndPlaces(t *testing.T) {
	for _, in := range []string{"999999.96", "-999999.99", "3.14159", "1e300", "7"} {
		got := SafeDecimal(in, decimal.Zero)
		if got.GreaterThan(MaxDecimal) || got.LessThan(MaxDecimal.Neg()) {
			t.Errorf("SafeDecimal(%q) = %s out of range", in, got)
		}
		if !got.Equal(got.Round(1)) {
			t.Errorf("SafeDecimal(%q) = %s has more than one place", in, got)
		}
	}
}

func TestSafeInt(t *testing.T) {
	tests := []struct {
		in   string
		def  int
		want int
	}{
		{"4", 1, 4},
		{"4.6", 1, 5},
		{"2.5", 1, 2},
		{"3.5", 1, 4},
		{"", 1, 1},
		{"nan", 0, 0},
		{"lots", 7, 7},
	}
	for _, tt := range tests {
		if got := SafeInt(tt.in, tt.def); got != tt.want {
			t.Errorf("SafeInt(%q, %d) = %d, want %d", tt.in, tt.def, got, tt.want)
		}
	}
}

func TestParseRecipeID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"38", 38, true},
		{"38.0", 38, true},
		{"38.5", 0, false},
		{"abc", 0, false},
		{"-1", 0, false},
		{"", 0, false},
		{"1e3", 1000, true},
		{"9223372036854775807", math.MaxInt64, true},
		{"9223372036854775808.0", 0, false},
		{"1e19", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRecipeID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRecipeID(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(1999, 8, 9, 21, 46, 0, 0, time.UTC)
	for _, in := range []string{"1999-08-09T21:46:00Z", "1999-08-09 21:46:00", "1999-08-09T21:46:00"} {
		got, ok := ParseDate(in)
		if !ok || !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseDate("last tuesday"); ok {
		t.Error("expected garbage date to fail")
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`["a", "b"]`, []string{"a", "b"}},
		{`["a", 3, "b"]`, []string{"a", "b"}},
		{`c("Toss the salad.", "Serve, chilled.")`, []string{"Toss the salad.", "Serve, chilled."}},
		{`['low protein', "kid's menu"]`, []string{"low protein", "kid's menu"}},
		{`"single"`, []string{"single"}},
		{`character(0)`, []string{}},
		{`NA`, []string{}},
		{``, []string{}},
		{`not a list`, []string{}},
		{`c("say \"hi\"")`, []string{`say "hi"`}},
	}
	for _, tt := range tests {
		got := ParseList(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseList(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseImages(t *testing.T) {
	got := ParseImages(`c("https://img.example.com/a.jpg", "ftp://x/y.jpg", "not a url", "http://img.example.com/b,c.jpg")`, 10)
	want := []string{"https://img.example.com/a.jpg", "http://img.example.com/b,c.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseImages = %#v, want %#v", got, want)
	}

	if got := ParseImages("https://img.example.com/only.jpg", 10); len(got) != 1 {
		t.Errorf("bare URL = %#v", got)
	}
	if got := ParseImages("character(0)", 10); len(got) != 0 {
		t.Errorf("empty vector = %#v", got)
	}

	many := `["http://a.com/1", "http://a.com/2", "http://a.com/3", "http://a.com/4"]`
	if got := ParseImages(many, 3); len(got) != 3 || got[2] != "http://a.com/3" {
		t.Errorf("capped = %#v", got)
	}
}
