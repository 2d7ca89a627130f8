package nfce

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Decoding of the NFC-e QR payload. The QR content is a portal URL carrying
// a "p" query parameter with five pipe-separated fields; the first field is
// the 44-digit access key, self-checksummed with a MOD-11 digit.

var (
	// ErrMalformedPayload means the QR text has no usable "p" parameter or
	// the parameter does not carry the five expected fields.
	ErrMalformedPayload = errors.New("qr payload is not a valid NFC-e")
	// ErrInvalidAccessKey means the access key is not 44 digits or its
	// check digit does not verify.
	ErrInvalidAccessKey = errors.New("invalid access key")
)

// AccessKeyFields is the positional breakdown of the 44-digit access key.
type AccessKeyFields struct {
	StateCode    string `json:"cUF"`
	YearMonth    string `json:"AAMM"`
	IssuerTaxId  string `json:"CNPJ"`
	Model        string `json:"mod"`
	Series       string `json:"serie"`
	Number       string `json:"nNF"`
	EmissionType string `json:"tpEmis"`
	RandomCode   string `json:"cNF"`
	CheckDigit   string `json:"cDV"`
}

// QRPayload holds the five raw fields of the "p" parameter plus the decoded
// access key breakdown.
type QRPayload struct {
	AccessKey     string `json:"chave"`
	Version       string `json:"versao"`
	Environment   string `json:"ambiente"`
	SecurityToken string `json:"cIdToken"`
	Signature     string `json:"vSig"`

	Fields *AccessKeyFields `json:"fields"`
}

// ParseQRPayload extracts and decodes the "p" parameter from a scanned QR
// URL or raw text. Pure; no I/O.
func ParseQRPayload(urlOrText string) (*QRPayload, error) {
	p := ""
	if u, err := url.Parse(urlOrText); err == nil {
		p = u.Query().Get("p")
	}
	if p == "" {
		// raw scanner output is not always a parseable URL
		if i := strings.Index(urlOrText, "p="); i >= 0 {
			p = urlOrText[i+2:]
		}
	}
	if p == "" {
		return nil, ErrMalformedPayload
	}

	parts := strings.Split(p, "|")
	if len(parts) != 5 {
		return nil, ErrMalformedPayload
	}

	fields, err := DecodeAccessKey(parts[0])
	if err != nil {
		return nil, err
	}

	return &QRPayload{
		AccessKey:     parts[0],
		Version:       parts[1],
		Environment:   parts[2],
		SecurityToken: parts[3],
		Signature:     parts[4],
		Fields:        fields,
	}, nil
}

// DecodeAccessKey splits a 44-digit access key into its positional fields
// and verifies the trailing MOD-11 check digit.
func DecodeAccessKey(key string) (*AccessKeyFields, error) {
	if len(key) != 44 || !isAllDigits(key) {
		return nil, ErrInvalidAccessKey
	}
	fields := &AccessKeyFields{
		StateCode:    key[0:2],
		YearMonth:    key[2:6],
		IssuerTaxId:  key[6:20],
		Model:        key[20:22],
		Series:       key[22:25],
		Number:       key[25:34],
		EmissionType: key[34:35],
		RandomCode:   key[35:43],
		CheckDigit:   key[43:44],
	}
	if strconv.Itoa(CheckDigitMod11(key[:43])) != fields.CheckDigit {
		return nil, ErrInvalidAccessKey
	}
	return fields, nil
}

// CheckDigitMod11 computes the access key check digit over the 43 leading
// digits: weights cycle 2..9 starting from the rightmost digit, and a
// remainder mapping to 10 or 11 collapses to 0.
func CheckDigitMod11(num43 string) int {
	weights := []int{2, 3, 4, 5, 6, 7, 8, 9}
	sum := 0
	for i := 0; i < len(num43); i++ {
		d := int(num43[len(num43)-1-i] - '0')
		sum += d * weights[i%len(weights)]
	}
	dv := 11 - (sum % 11)
	if dv >= 10 {
		dv = 0
	}
	return dv
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
