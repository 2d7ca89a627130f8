package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateTaxId(t *testing.T) {
	cases := []struct {
		cnpj string
		want bool
	}{
		{"12345678000195", true},
		{"11222333000181", true},
		{"11.222.333/0001-81", true},
		{"11222333000182", false},
		{"11111111111111", false},
		{"123", false},
		{"", false},
		{"1122233300018a", false},
	}
	for _, c := range cases {
		if got := ValidateTaxId(c.cnpj); got != c.want {
			t.Fatalf("ValidateTaxId(%q) = %v, want %v", c.cnpj, got, c.want)
		}
	}
}

func TestCleanTaxId(t *testing.T) {
	if got := CleanTaxId("11.222.333/0001-81"); got != "11222333000181" {
		t.Fatalf("CleanTaxId = %q", got)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return &Client{baseURL: srv.URL, http: srv.Client()}
}

func TestLookupOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/cnpj/11222333000181" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "OK",
			"cnpj": "11.222.333/0001-81",
			"nome": "MERCADO EXEMPLO LTDA",
			"fantasia": "Mercado Exemplo",
			"situacao": "ATIVA",
			"abertura": "01/02/2010",
			"capital_social": "1.234,56",
			"natureza_juridica": "206-2 - Sociedade Empresária Limitada",
			"logradouro": "Avenida Brasil",
			"numero": "100",
			"complemento": "Loja 2",
			"cep": "01.000-000",
			"municipio": "São Paulo",
			"uf": "SP",
			"telefone": "(11) 98765-4321 / (11) 5555-0000",
			"email": "contato@mercadoexemplo.com.br"
		}`))
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11222333000181")
	if result.Status != LookupOk {
		t.Fatalf("Status = %v, want LookupOk (err=%v)", result.Status, result.Err)
	}
	data := result.Data
	if data.LegalName != "MERCADO EXEMPLO LTDA" {
		t.Fatalf("LegalName = %q", data.LegalName)
	}
	if data.TradeName != "Mercado Exemplo" {
		t.Fatalf("TradeName = %q", data.TradeName)
	}
	if data.RegistryStatus != "ATIVA" {
		t.Fatalf("RegistryStatus = %q", data.RegistryStatus)
	}
	if data.FoundingDate != "2010-02-01" {
		t.Fatalf("FoundingDate = %q, want 2010-02-01", data.FoundingDate)
	}
	if data.ShareCapital == nil || !data.ShareCapital.Equal(decimalFromString(t, "1234.56")) {
		t.Fatalf("ShareCapital = %v", data.ShareCapital)
	}
	if data.Address != "Avenida Brasil, 100, Loja 2" {
		t.Fatalf("Address = %q", data.Address)
	}
	if data.Phone != "(11) 987654321" {
		t.Fatalf("Phone = %q", data.Phone)
	}
	if data.Email != "contato@mercadoexemplo.com.br" {
		t.Fatalf("Email = %q", data.Email)
	}
	if data.StateAbbrev != "SP" {
		t.Fatalf("StateAbbrev = %q", data.StateAbbrev)
	}
}

func TestLookupLegalNameFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","razao_social":"EMPRESA RAZAO SA"}`))
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11222333000181")
	if result.Status != LookupOk {
		t.Fatalf("Status = %v", result.Status)
	}
	if result.Data.LegalName != "EMPRESA RAZAO SA" {
		t.Fatalf("LegalName = %q", result.Data.LegalName)
	}
}

func TestLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11222333000181")
	if result.Status != LookupNotFound {
		t.Fatalf("Status = %v, want LookupNotFound", result.Status)
	}
}

func TestLookupProviderErrorBody(t *testing.T) {
	// the provider reports missing CNPJs inside a 200 response
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ERROR","message":"CNPJ inválido"}`))
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11222333000181")
	if result.Status != LookupNotFound {
		t.Fatalf("Status = %v, want LookupNotFound", result.Status)
	}
}

func TestLookupRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11222333000181")
	if result.Status != LookupRateLimited {
		t.Fatalf("Status = %v, want LookupRateLimited", result.Status)
	}
}

func TestLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11222333000181")
	if result.Status != LookupFailed {
		t.Fatalf("Status = %v, want LookupFailed", result.Status)
	}
}

func TestLookupInvalidTaxIdNeverHitsNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	result := newTestClient(srv).Lookup(context.Background(), "11111111111111")
	if result.Status != LookupFailed || !errors.Is(result.Err, ErrInvalidTaxId) {
		t.Fatalf("result = %+v, want ErrInvalidTaxId", result)
	}
	if calls != 0 {
		t.Fatalf("expected no network calls, got %d", calls)
	}
}

func TestComposeAddress(t *testing.T) {
	cases := []struct {
		street, number, complement string
		want                       string
	}{
		{"Avenida Brasil", "100", "Loja 2", "Avenida Brasil, 100, Loja 2"},
		{"Avenida Brasil", "100", "", "Avenida Brasil, 100"},
		{"Avenida Brasil", "", "", "Avenida Brasil, S/N"},
		{"", "100", "", ""},
	}
	for _, c := range cases {
		if got := composeAddress(c.street, c.number, c.complement); got != c.want {
			t.Fatalf("composeAddress(%q,%q,%q) = %q, want %q", c.street, c.number, c.complement, got, c.want)
		}
	}
}
