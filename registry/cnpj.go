package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nfce-scan/nfce_backend/utils"
	"github.com/shopspring/decimal"
)

// Client looks up company registration data by CNPJ on a public registry
// API and normalizes the response into the issuer shape stored on receipts.

// ErrInvalidTaxId means the CNPJ failed the check-digit validation; no
// network call is made for these.
var ErrInvalidTaxId = errors.New("invalid tax id")

// LookupStatus classifies a registry lookup so callers branch on an enum
// instead of sniffing error strings.
type LookupStatus int

const (
	LookupOk LookupStatus = iota
	// LookupNotFound is terminal: the registry has no record for the CNPJ.
	LookupNotFound
	// LookupRateLimited is retryable after a backoff.
	LookupRateLimited
	// LookupFailed covers transport errors and unexpected statuses.
	LookupFailed
)

// LookupResult carries the classified outcome of one lookup attempt.
type LookupResult struct {
	Status LookupStatus
	Data   *IssuerData
	Err    error
}

// IssuerData is the canonical issuer registration shape. FoundingDate is
// ISO YYYY-MM-DD; Phone is "(DDD) number"; ShareCapital is a plain decimal.
type IssuerData struct {
	TaxId             string
	LegalName         string
	TradeName         string
	RegistryStatus    string
	FoundingDate      string
	ShareCapital      *decimal.Decimal
	LegalNature       string
	Address           string
	PostalCode        string
	City              string
	StateAbbrev       string
	Phone             string
	Email             string
	StateRegistration string
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("REGISTRY_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://receitaws.com.br"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CleanTaxId strips the CNPJ mask, keeping digits only.
func CleanTaxId(cnpj string) string {
	return utils.OnlyDigits(cnpj)
}

// ValidateTaxId runs the standard two-pass weighted mod-11 CNPJ check.
func ValidateTaxId(cnpj string) bool {
	c := CleanTaxId(cnpj)
	if len(c) != 14 {
		return false
	}
	allEqual := true
	for i := 1; i < len(c); i++ {
		if c[i] != c[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return false
	}
	if cnpjCheckDigit(c, 12) != int(c[12]-'0') {
		return false
	}
	return cnpjCheckDigit(c, 13) == int(c[13]-'0')
}

// cnpjCheckDigit computes one verification digit over the first n digits,
// weights 2..9 cycling from the rightmost position.
func cnpjCheckDigit(c string, n int) int {
	sum := 0
	weight := 2
	for i := n - 1; i >= 0; i-- {
		sum += int(c[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// providerResponse mirrors the registry API's JSON payload.
type providerResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	CNPJ              string `json:"cnpj"`
	Nome              string `json:"nome"`
	RazaoSocial       string `json:"razao_social"`
	Fantasia          string `json:"fantasia"`
	Situacao          string `json:"situacao"`
	Abertura          string `json:"abertura"`
	CapitalSocial     string `json:"capital_social"`
	NaturezaJuridica  string `json:"natureza_juridica"`
	Logradouro        string `json:"logradouro"`
	Numero            string `json:"numero"`
	Complemento       string `json:"complemento"`
	CEP               string `json:"cep"`
	Municipio         string `json:"municipio"`
	UF                string `json:"uf"`
	Telefone          string `json:"telefone"`
	Email             string `json:"email"`
	InscricaoEstadual string `json:"inscricao_estadual"`
}

// Lookup performs a single registry query. Invalid CNPJs fail fast with
// ErrInvalidTaxId and never hit the network.
func (c *Client) Lookup(ctx context.Context, cnpj string) LookupResult {
	cleaned := CleanTaxId(cnpj)
	if !ValidateTaxId(cleaned) {
		return LookupResult{Status: LookupFailed, Err: ErrInvalidTaxId}
	}

	endpoint := fmt.Sprintf("%s/v1/cnpj/%s", c.baseURL, cleaned)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LookupResult{Status: LookupFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "NFC-e-Scan/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return LookupResult{Status: LookupFailed, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return LookupResult{Status: LookupNotFound}
	case resp.StatusCode == http.StatusTooManyRequests:
		return LookupResult{Status: LookupRateLimited}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return LookupResult{Status: LookupFailed, Err: fmt.Errorf("registry api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return LookupResult{Status: LookupFailed, Err: err}
	}
	// the provider reports missing CNPJs inside a 200 body
	if strings.EqualFold(parsed.Status, "ERROR") {
		return LookupResult{Status: LookupNotFound}
	}

	return LookupResult{Status: LookupOk, Data: mapProviderResponse(&parsed)}
}

func mapProviderResponse(p *providerResponse) *IssuerData {
	legalName := p.Nome
	if legalName == "" {
		legalName = p.RazaoSocial
	}

	email := strings.TrimSpace(p.Email)
	if email != "" && !utils.IsValidEmail(email) {
		email = ""
	}

	return &IssuerData{
		TaxId:             p.CNPJ,
		LegalName:         legalName,
		TradeName:         p.Fantasia,
		RegistryStatus:    p.Situacao,
		FoundingDate:      utils.FormatDateISO(p.Abertura),
		ShareCapital:      utils.ParseMoneyString(p.CapitalSocial),
		LegalNature:       p.NaturezaJuridica,
		Address:           composeAddress(p.Logradouro, p.Numero, p.Complemento),
		PostalCode:        p.CEP,
		City:              p.Municipio,
		StateAbbrev:       p.UF,
		Phone:             utils.FormatPhone(p.Telefone),
		Email:             email,
		StateRegistration: p.InscricaoEstadual,
	}
}

// composeAddress joins "logradouro, numero[, complemento]"; a missing number
// becomes "S/N".
func composeAddress(street, number, complement string) string {
	if street == "" {
		return ""
	}
	if number == "" {
		number = "S/N"
	}
	addr := street + ", " + number
	if complement != "" {
		addr += ", " + complement
	}
	return addr
}
