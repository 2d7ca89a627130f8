package nfce

import (
	"errors"
	"testing"
)

const (
	validKey  = "35230112345678000195650010000000421123456782"
	validKey2 = "41240711222333000181650020000012341876543216"
)

func TestCheckDigitMod11(t *testing.T) {
	cases := []struct {
		key  string
		want int
	}{
		{validKey, 2},
		{validKey2, 6},
	}
	for _, c := range cases {
		got := CheckDigitMod11(c.key[:43])
		if got != c.want {
			t.Fatalf("CheckDigitMod11(%s) = %d, want %d", c.key[:43], got, c.want)
		}
	}
}

func TestDecodeAccessKey(t *testing.T) {
	fields, err := DecodeAccessKey(validKey)
	if err != nil {
		t.Fatalf("DecodeAccessKey returned error: %v", err)
	}
	if fields.StateCode != "35" {
		t.Fatalf("StateCode = %q, want 35", fields.StateCode)
	}
	if fields.YearMonth != "2301" {
		t.Fatalf("YearMonth = %q, want 2301", fields.YearMonth)
	}
	if fields.IssuerTaxId != "12345678000195" {
		t.Fatalf("IssuerTaxId = %q, want 12345678000195", fields.IssuerTaxId)
	}
	if fields.Model != "65" {
		t.Fatalf("Model = %q, want 65", fields.Model)
	}
	if fields.Series != "001" {
		t.Fatalf("Series = %q, want 001", fields.Series)
	}
	if fields.Number != "000000042" {
		t.Fatalf("Number = %q, want 000000042", fields.Number)
	}
	if fields.EmissionType != "1" {
		t.Fatalf("EmissionType = %q, want 1", fields.EmissionType)
	}
	if fields.RandomCode != "12345678" {
		t.Fatalf("RandomCode = %q, want 12345678", fields.RandomCode)
	}
	if fields.CheckDigit != "2" {
		t.Fatalf("CheckDigit = %q, want 2", fields.CheckDigit)
	}
}

func TestDecodeAccessKeyRejects(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"too short", validKey[:43]},
		{"too long", validKey + "0"},
		{"letters", "3523011234567800019565001000000042112345678X"},
		{"wrong check digit", validKey[:43] + "3"},
		{"empty", ""},
	}
	for _, c := range cases {
		if _, err := DecodeAccessKey(c.key); !errors.Is(err, ErrInvalidAccessKey) {
			t.Fatalf("%s: DecodeAccessKey(%q) err = %v, want ErrInvalidAccessKey", c.name, c.key, err)
		}
	}
}

func TestDecodeAccessKeyEveryWrongCheckDigit(t *testing.T) {
	// only the computed digit verifies; all nine others must be rejected
	for d := byte('0'); d <= '9'; d++ {
		key := validKey[:43] + string(d)
		_, err := DecodeAccessKey(key)
		if d == validKey[43] {
			if err != nil {
				t.Fatalf("correct digit %c rejected: %v", d, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAccessKey) {
			t.Fatalf("digit %c: err = %v, want ErrInvalidAccessKey", d, err)
		}
	}
}

func TestParseQRPayload(t *testing.T) {
	url := "https://www.fazenda.sp.gov.br/nfce/qrcode?p=" + validKey + "|2|1|1|ABCDEF0123456789"
	payload, err := ParseQRPayload(url)
	if err != nil {
		t.Fatalf("ParseQRPayload returned error: %v", err)
	}
	if payload.AccessKey != validKey {
		t.Fatalf("AccessKey = %q, want %q", payload.AccessKey, validKey)
	}
	if payload.Version != "2" {
		t.Fatalf("Version = %q, want 2", payload.Version)
	}
	if payload.Environment != "1" {
		t.Fatalf("Environment = %q, want 1", payload.Environment)
	}
	if payload.SecurityToken != "1" {
		t.Fatalf("SecurityToken = %q, want 1", payload.SecurityToken)
	}
	if payload.Signature != "ABCDEF0123456789" {
		t.Fatalf("Signature = %q", payload.Signature)
	}
	if payload.Fields == nil || payload.Fields.IssuerTaxId != "12345678000195" {
		t.Fatalf("Fields not decoded: %+v", payload.Fields)
	}
}

func TestParseQRPayloadRawText(t *testing.T) {
	// scanner output that is not a parseable URL still carries p=
	raw := "qrcode p=" + validKey2 + "|2|2|1|FFAA"
	payload, err := ParseQRPayload(raw)
	if err != nil {
		t.Fatalf("ParseQRPayload returned error: %v", err)
	}
	if payload.AccessKey != validKey2 {
		t.Fatalf("AccessKey = %q, want %q", payload.AccessKey, validKey2)
	}
}

func TestParseQRPayloadMalformed(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"no p parameter", "https://example.com/qrcode?x=1", ErrMalformedPayload},
		{"empty", "", ErrMalformedPayload},
		{"four fields", "https://example.com/?p=" + validKey + "|2|1|1", ErrMalformedPayload},
		{"six fields", "https://example.com/?p=" + validKey + "|2|1|1|AA|extra", ErrMalformedPayload},
		{"bad key", "https://example.com/?p=" + validKey[:43] + "3|2|1|1|AA", ErrInvalidAccessKey},
	}
	for _, c := range cases {
		if _, err := ParseQRPayload(c.input); !errors.Is(err, c.wantErr) {
			t.Fatalf("%s: err = %v, want %v", c.name, err, c.wantErr)
		}
	}
}
