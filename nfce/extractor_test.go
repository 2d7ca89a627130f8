package nfce

import "testing"

const samplePage = `MERCADO EXEMPLO LTDA
CNPJ: 12.345.678/0001-95
Avenida Brasil, 100
ARROZ BRANCO 5KG (Código: 001)
Qtde.:2,000
UN: UN
Vl. Unit.:5,00
Vl. Total
10,00
FEIJAO CARIOCA 1KG (Código: 002)
Qtde.:1,000
UN: UN
Vl. Unit.:8,90
Vl. Total
8,90
`

func TestExtractReceiptText(t *testing.T) {
	result := ExtractReceiptText(samplePage)

	if result.Issuer.TaxId != "12.345.678/0001-95" {
		t.Fatalf("Issuer.TaxId = %q", result.Issuer.TaxId)
	}
	if result.Issuer.Name != "MERCADO EXEMPLO LTDA" {
		t.Fatalf("Issuer.Name = %q", result.Issuer.Name)
	}
	if len(result.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(result.Items))
	}

	first := result.Items[0]
	if first.Code != "001" {
		t.Fatalf("Code = %q, want 001", first.Code)
	}
	if first.Description != "ARROZ BRANCO 5KG" {
		t.Fatalf("Description = %q", first.Description)
	}
	if first.Quantity != "2,000" {
		t.Fatalf("Quantity = %q, want 2,000", first.Quantity)
	}
	if first.Unit != "UN" {
		t.Fatalf("Unit = %q, want UN", first.Unit)
	}
	if first.UnitPrice != "5,00" {
		t.Fatalf("UnitPrice = %q, want 5,00", first.UnitPrice)
	}
	if first.TotalPrice != "10,00" {
		t.Fatalf("TotalPrice = %q, want 10,00", first.TotalPrice)
	}

	second := result.Items[1]
	if second.Code != "002" || second.Description != "FEIJAO CARIOCA 1KG" {
		t.Fatalf("second item = %+v", second)
	}
	if second.TotalPrice != "8,90" {
		t.Fatalf("second TotalPrice = %q, want 8,90", second.TotalPrice)
	}
}

func TestExtractReceiptTextNoAnchors(t *testing.T) {
	result := ExtractReceiptText("pagina sem conteudo reconhecivel\nsem cnpj aqui\n")
	if len(result.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(result.Items))
	}
	if result.Issuer.TaxId != "" || result.Issuer.Name != "" {
		t.Fatalf("expected empty issuer, got %+v", result.Issuer)
	}
}

func TestExtractReceiptTextMarkdownBold(t *testing.T) {
	page := "**MERCADO EXEMPLO LTDA**\n**CNPJ:** 12.345.678/0001-95\n"
	result := ExtractReceiptText(page)
	if result.Issuer.TaxId != "12.345.678/0001-95" {
		t.Fatalf("Issuer.TaxId = %q", result.Issuer.TaxId)
	}
	if result.Issuer.Name != "MERCADO EXEMPLO LTDA" {
		t.Fatalf("Issuer.Name = %q", result.Issuer.Name)
	}
}

func TestExtractReceiptTextBareCNPJ(t *testing.T) {
	result := ExtractReceiptText("LOJA TAL\nCNPJ: 12345678000195\n")
	if result.Issuer.TaxId != "12345678000195" {
		t.Fatalf("Issuer.TaxId = %q", result.Issuer.TaxId)
	}
}

func TestExtractItemDescriptionFromPreviousLine(t *testing.T) {
	// some portals break the line right before the anchor
	page := "CAFE TORRADO 500G\n(Código: 777)\nQtde.:1,000\nUN: PC\nVl. Unit.:12,50\nVl. Total\n12,50\n"
	result := ExtractReceiptText(page)
	if len(result.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(result.Items))
	}
	if result.Items[0].Description != "CAFE TORRADO 500G" {
		t.Fatalf("Description = %q", result.Items[0].Description)
	}
}

func TestNormalizeSpaces(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  a \t b  ", "a b"},
		{"a\u00a0b", "a b"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeSpaces(c.in); got != c.want {
			t.Fatalf("NormalizeSpaces(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
