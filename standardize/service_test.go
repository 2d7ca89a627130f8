package standardize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nfce-scan/nfce_backend/models"
)

func TestIsRateLimitError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("gemini api error (429): too many requests"), true},
		{errors.New("Quota Exceeded for this project"), true},
		{errors.New("RESOURCE_EXHAUSTED"), true},
		{errors.New("rate limit reached"), true},
		{errors.New("gemini api error (500): internal"), false},
		{errors.New("connection refused"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := isRateLimitError(c.err); got != c.want {
			t.Fatalf("isRateLimitError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestDecodeObject(t *testing.T) {
	type out struct {
		Name *string `json:"nome_produto"`
	}

	cases := []struct {
		name string
		raw  string
	}{
		{"plain json", `{"nome_produto":"Creme de Leite"}`},
		{"fenced", "```json\n{\"nome_produto\":\"Creme de Leite\"}\n```"},
		{"fenced no language", "```\n{\"nome_produto\":\"Creme de Leite\"}\n```"},
		{"surrounded by chatter", "Aqui está o resultado:\n{\"nome_produto\":\"Creme de Leite\"}\nEspero ter ajudado!"},
	}
	for _, c := range cases {
		var v out
		if err := decodeObject(c.raw, &v); err != nil {
			t.Fatalf("%s: decodeObject error: %v", c.name, err)
		}
		if v.Name == nil || *v.Name != "Creme de Leite" {
			t.Fatalf("%s: Name = %v", c.name, v.Name)
		}
	}

	var v out
	if err := decodeObject("isto não é JSON", &v); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestDecodeArray(t *testing.T) {
	raw := "Segue o lote:\n```json\n[{\"id\":7,\"resultado\":{\"nome_produto\":\"Arroz Branco\"}}]\n```"
	var elements []batchElement
	if err := decodeArray(raw, &elements); err != nil {
		t.Fatalf("decodeArray error: %v", err)
	}
	if len(elements) != 1 || elements[0].ID != 7 {
		t.Fatalf("elements = %+v", elements)
	}
	if elements[0].Result == nil || elements[0].Result.ProductName == nil || *elements[0].Result.ProductName != "Arroz Branco" {
		t.Fatalf("result = %+v", elements[0].Result)
	}
}

func TestCooldownRotation(t *testing.T) {
	s := NewService()
	keys := []models.GeminiKey{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}

	if got := s.eligibleKeys(keys); len(got) != 2 {
		t.Fatalf("eligible = %d, want 2", len(got))
	}

	s.startCooldown(1)
	eligible := s.eligibleKeys(keys)
	if len(eligible) != 1 || eligible[0].ID != 2 {
		t.Fatalf("eligible after cooldown = %+v", eligible)
	}

	// expired cooldown makes the key eligible again
	s.mu.Lock()
	s.cooldownUntil[1] = time.Now().Add(-time.Second)
	s.mu.Unlock()
	if got := s.eligibleKeys(keys); len(got) != 2 {
		t.Fatalf("eligible after expiry = %d, want 2", len(got))
	}
}

func TestBatchPromptShape(t *testing.T) {
	prompt := batchPrompt([]batchInput{
		{ID: 7, Description: "ARROZ BRANCO 5KG"},
		{ID: 9, Description: "CR LT 200G"},
	})
	if !strings.Contains(prompt, "- id: 7 | descricao: ARROZ BRANCO 5KG") {
		t.Fatalf("prompt missing first item:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- id: 9 | descricao: CR LT 200G") {
		t.Fatal("prompt missing second item")
	}
	if !strings.Contains(prompt, "tipo_embalagem") {
		t.Fatal("prompt missing output contract")
	}
}

func TestRoundedQuantity(t *testing.T) {
	if roundedQuantity(nil) != nil {
		t.Fatal("nil quantity should stay nil")
	}
	q := 2.6
	if got := roundedQuantity(&q); got != 3 {
		t.Fatalf("roundedQuantity(2.6) = %v, want 3", got)
	}
}
