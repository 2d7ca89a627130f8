package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// CountryCode is used for phone number sanity checks.
var CountryCode = "BR"

var nonDigitRe = regexp.MustCompile(`\D`)

func IsValidEmail(email string) bool {
	pattern := `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	regex := regexp.MustCompile(pattern)
	return regex.MatchString(email)
}

// OnlyDigits strips everything that is not a decimal digit.
func OnlyDigits(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// ParseBrazilianDecimal converts values like "1.234,56" / "2,000" into a
// decimal. Empty or unparseable input yields zero, matching how scanned
// receipt fields are tolerated end to end.
func ParseBrazilianDecimal(value string) decimal.Decimal {
	cleaned := strings.ReplaceAll(value, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "\u00a0", "")
	if cleaned == "" {
		return decimal.Zero
	}
	// "1.234,56" carries thousands dots; a lone "2,000" does not.
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseMoneyString parses provider-formatted money ("1.234,56", "123456.78",
// "R$ 500,00") into a decimal, or nil when nothing numeric remains.
func ParseMoneyString(value string) *decimal.Decimal {
	cleaned := regexp.MustCompile(`[^\d,.\-]`).ReplaceAllString(value, "")
	if cleaned == "" {
		return nil
	}
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

// FormatDateISO converts "DD/MM/YYYY" to "YYYY-MM-DD". Already-ISO input is
// passed through; anything else yields empty.
func FormatDateISO(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if strings.Contains(date, "-") {
		return date
	}
	if strings.Contains(date, "/") {
		parts := strings.Split(date, "/")
		if len(parts) == 3 {
			return fmt.Sprintf("%s-%s-%s", parts[2], padTwo(parts[1]), padTwo(parts[0]))
		}
	}
	return ""
}

func padTwo(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// FormatPhone normalizes the first listed phone number to "(DDD) number".
// Registry responses list phones as "(11) 2188-1400 / (11) 5555-0000".
func FormatPhone(raw string) string {
	first := strings.TrimSpace(strings.Split(raw, "/")[0])
	if first == "" {
		return ""
	}
	digits := OnlyDigits(first)
	if len(digits) < 10 {
		return first
	}
	formatted := fmt.Sprintf("(%s) %s", digits[:2], digits[2:])
	if p, err := libphonenumber.Parse(formatted, CountryCode); err == nil {
		if !libphonenumber.IsValidNumber(p) {
			// keep the provider's own rendering when our guess is off
			return first
		}
	}
	return formatted
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errorResponse["error"] = err.Error()
		return errorResponse
	}
	for _, fieldErr := range validationErrors {
		errorResponse[fieldErr.Field()] = fmt.Sprintf("failed on %s validation", fieldErr.Tag())
	}
	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NilIfEmpty[T comparable](value T) *T {
	var zero T
	if value == zero {
		return nil
	}
	return &value
}
