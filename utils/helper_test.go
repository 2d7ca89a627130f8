package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseBrazilianDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2,000", "2"},
		{"10,00", "10"},
		{"1.234,56", "1234.56"},
		{"1.5", "1.5"},
		{"5,005", "5.005"},
		{"", "0"},
		{"abc", "0"},
		{" 12,50 ", "12.5"},
	}
	for _, c := range cases {
		want, _ := decimal.NewFromString(c.want)
		if got := ParseBrazilianDecimal(c.in); !got.Equal(want) {
			t.Fatalf("ParseBrazilianDecimal(%q) = %s, want %s", c.in, got, want)
		}
	}
}

func TestParseMoneyString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.234,56", "1234.56"},
		{"R$ 500,00", "500"},
		{"123456.78", "123456.78"},
	}
	for _, c := range cases {
		want, _ := decimal.NewFromString(c.want)
		got := ParseMoneyString(c.in)
		if got == nil || !got.Equal(want) {
			t.Fatalf("ParseMoneyString(%q) = %v, want %s", c.in, got, want)
		}
	}

	if got := ParseMoneyString(""); got != nil {
		t.Fatalf("ParseMoneyString(\"\") = %v, want nil", got)
	}
	if got := ParseMoneyString("sem valor"); got != nil {
		t.Fatalf("ParseMoneyString(non numeric) = %v, want nil", got)
	}
}

func TestFormatDateISO(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"01/02/2010", "2010-02-01"},
		{"1/2/2010", "2010-02-01"},
		{"2010-02-01", "2010-02-01"},
		{"", ""},
		{"sem data", ""},
	}
	for _, c := range cases {
		if got := FormatDateISO(c.in); got != c.want {
			t.Fatalf("FormatDateISO(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestOnlyDigits(t *testing.T) {
	if got := OnlyDigits("12.345.678/0001-95"); got != "12345678000195" {
		t.Fatalf("OnlyDigits = %q", got)
	}
	if got := OnlyDigits("abc"); got != "" {
		t.Fatalf("OnlyDigits(abc) = %q", got)
	}
}

func TestFormatPhone(t *testing.T) {
	// the registry lists multiple numbers separated by slashes
	if got := FormatPhone("(11) 98765-4321 / (11) 5555-0000"); got != "(11) 987654321" {
		t.Fatalf("FormatPhone = %q", got)
	}
	if got := FormatPhone("123"); got != "123" {
		t.Fatalf("short number = %q", got)
	}
	if got := FormatPhone(""); got != "" {
		t.Fatalf("empty = %q", got)
	}
}

func TestIsValidEmail(t *testing.T) {
	if !IsValidEmail("contato@mercadoexemplo.com.br") {
		t.Fatal("valid email rejected")
	}
	if IsValidEmail("não é email") {
		t.Fatal("invalid email accepted")
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatal("empty string should be nil")
	}
	if v := NilIfEmpty("x"); v == nil || *v != "x" {
		t.Fatalf("NilIfEmpty(x) = %v", v)
	}
}
