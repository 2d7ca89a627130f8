package workflow

import (
	"testing"

	"github.com/nfce-scan/nfce_backend/models"
	"github.com/nfce-scan/nfce_backend/utils"
	"github.com/shopspring/decimal"
)

func TestDecimalsClose(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		// the same scan rendered by two different portals
		{"1,000", "1.0", true},
		{"12,50", "12.50", true},
		{"10,00", "10", true},
		{"10,00", "10,01", false},
		{"10,00", "10,009", true},
		{"0", "0,01", false},
		{"5,00", "5,005", true},
	}
	for _, c := range cases {
		a := utils.ParseBrazilianDecimal(c.a)
		b := utils.ParseBrazilianDecimal(c.b)
		if got := decimalsClose(a, b); got != c.want {
			t.Fatalf("decimalsClose(%s, %s) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestHasLinkedMatch(t *testing.T) {
	items := []models.LineItem{
		{Description: "ARROZ BRANCO 5KG", Quantity: dec("2"), TotalPrice: dec("10.00")},
		{Description: "FEIJAO CARIOCA 1KG", Quantity: dec("1"), TotalPrice: dec("8.90")},
	}

	if !hasLinkedMatch(items, "ARROZ BRANCO 5KG", dec("2.000"), dec("10")) {
		t.Fatal("expected match within tolerance")
	}
	if hasLinkedMatch(items, "ARROZ BRANCO 5KG", dec("3"), dec("10")) {
		t.Fatal("quantity drift beyond tolerance matched")
	}
	if hasLinkedMatch(items, "MACARRAO 500G", dec("2"), dec("10")) {
		t.Fatal("unknown description matched")
	}
}

func TestPickReparentCandidateWrongReceipt(t *testing.T) {
	other := 7
	items := []models.LineItem{
		{ID: 1, ReceiptId: &other, Description: "ARROZ BRANCO 5KG", Quantity: dec("2"), TotalPrice: dec("10")},
	}

	// a row stuck on another receipt with agreeing values is corrected in
	// place instead of being duplicated by an insert
	got := pickReparentCandidate(items, 3, dec("2.000"), dec("10.00"))
	if got == nil || got.ID != 1 {
		t.Fatalf("pickReparentCandidate = %+v, want item 1", got)
	}

	// value drift means it is a different item of the same name; leave it
	if pickReparentCandidate(items, 3, dec("5"), dec("25")) != nil {
		t.Fatal("drifting values on a linked row must not match")
	}
}

func TestPickReparentCandidateOrphan(t *testing.T) {
	items := []models.LineItem{
		{ID: 1, Description: "ARROZ BRANCO 5KG", Quantity: dec("5"), TotalPrice: dec("25")},
	}

	// an unlinked row is claimed on description alone, values regardless
	got := pickReparentCandidate(items, 3, dec("2"), dec("10"))
	if got == nil || got.ID != 1 {
		t.Fatalf("pickReparentCandidate = %+v, want orphan item 1", got)
	}

	if pickReparentCandidate(nil, 3, dec("2"), dec("10")) != nil {
		t.Fatal("no candidates must yield nil")
	}
}

func TestPickReparentCandidatePrefersOrphan(t *testing.T) {
	other := 7
	items := []models.LineItem{
		{ID: 1, Description: "ARROZ BRANCO 5KG", Quantity: dec("2"), TotalPrice: dec("10")},
		{ID: 2, ReceiptId: &other, Description: "ARROZ BRANCO 5KG", Quantity: dec("2"), TotalPrice: dec("10")},
	}

	got := pickReparentCandidate(items, 3, dec("2"), dec("10"))
	if got == nil || got.ID != 1 {
		t.Fatalf("pickReparentCandidate = %+v, want unlinked item 1 first", got)
	}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
