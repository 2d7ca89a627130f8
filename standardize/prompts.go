package standardize

import (
	"fmt"
	"os"
	"strings"
)

// The extraction prompt is written in Portuguese because the product
// descriptions are Portuguese; mixing languages measurably hurts the
// model's field extraction. An operator can override it with a prompt file.

const baseSystemPrompt = `Você é um extrator de informações. Sua tarefa é analisar apenas a string de descrição de um produto (sem contexto adicional) e retornar um JSON padronizado. Não invente nada: se um campo não estiver claramente presente na descrição, retorne null.

Formato de saída (obrigatório):
{
  "tipo_embalagem": string|null,
  "nome_produto": string|null,
  "marca": string|null,
  "quantidade": number|null,
  "peso": string|null,
  "categoria": string|null
}

Regras gerais:
- Use apenas a própria descrição como fonte. Não use conhecimento externo.
- Não deduza marca, tipo de embalagem, quantidade, peso ou categoria se não estiverem explícitos de forma inequívoca.
- A saída deve ser somente o JSON, sem comentários, explicações ou texto extra.

Normalização:
- nome_produto e marca em Title Case (ex.: "Creme de Leite", "Coca-Cola").
- Remova códigos e ruídos do nome_produto (ex.: "- 1X1", "- KG", códigos numéricos internos, "F4", "MC", etc.).
- quantidade: extraia quando houver padrão claro (ex.: 1X1, 2UN, 3 UND). Guarde como número inteiro (1, 2, 3). Se não houver, null.
- peso (conteúdo líquido): string normalizada no formato valor+unidade sem espaço (ex.: 200g, 800g, 1.5L, 500ml).
  - Converta vírgula decimal para ponto (1,5LT → 1.5L).
  - Unidades válidas: g, kg, ml, L.
  - Se não houver indicação clara, null.

Tipo de embalagem (preencher apenas com evidência clara):
- PT, PCT → Pacote
- CX → Caixa
- SCH, SACH → Sachê
- TP, TPK, TETRA → Tetra Pak
- TAB → Tablete
- PET → Garrafa PET
- LT → Lata apenas quando aparecer como token de embalagem (ex.: "... LT - 1X1 220ML").
  - Se LT/LT. aparecer colado a número como unidade de volume (ex.: 1,5LT), não é embalagem; normalize para 1.5L em peso e deixe tipo_embalagem como null.

Abreviações de produto (expanda somente quando inequívocas):
- CLT, CR LEITE, CR LT → Creme de Leite
- LEITE COND, COND → Leite Condensado
- LEITE PO → Leite em Pó
- CHOC → Chocolate
- REFRI, REFRIG → Refrigerante
- AGUA MIN → Água Mineral
- QUEIJO MUS, QJ MUS, MUSS → Queijo Mussarela
- P PAO FRANCES → Pão Francês

Categoria (preencher com base em palavras-chave explícitas; se ambíguo, null):
- Hortifruti → ALFACE, TOMATE, CENOURA, CEBOLA, MAÇÃ, MACA, LIMAO, ALMEIRAO
- Carnes → FRANGO, BISTECA, COXAO, COSTELA, CARNE, SUINA, BOVINO
- Laticínios → LEITE, CREME DE LEITE, QUEIJO, MUSSARELA
- Bebidas → REFRI, REFRIGERANTE, AGUA, ENERGETICO, SUCO, CERVEJA
- Padaria → PAO, PÃO, BOLO
- Doces e Chocolates → CHOC, BOMBOM, TRIDENT, GOMA, PASTILHA
- Mercearia → MAIONESE, KETCHUP, MOSTARDA, TEMPERO, FILME PVC, PALITO DENTE

Marca: Preencha apenas se o nome da marca estiver explícito (ex.: Seara, Piracanjuba, Italac, Nestlé, Coca-Cola, Hellmann's, Trident, Puríssima, Leev).`

// systemPrompt reads the operator override from GEMINI_PROMPT_FILE, falling
// back to the built-in prompt.
func systemPrompt() string {
	if path := strings.TrimSpace(os.Getenv("GEMINI_PROMPT_FILE")); path != "" {
		if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
			return string(data)
		}
	}
	return baseSystemPrompt
}

func singleItemPrompt(description string) string {
	return fmt.Sprintf("%s\n\nAnalise esta descrição de produto e retorne apenas o JSON conforme as regras: %q", systemPrompt(), description)
}

type batchInput struct {
	ID          int
	Description string
}

// batchPrompt numbers the items and asks for an array of {id, resultado}
// objects in input order.
func batchPrompt(items []batchInput) string {
	var list strings.Builder
	for _, it := range items {
		fmt.Fprintf(&list, "- id: %d | descricao: %s\n", it.ID, it.Description)
	}

	return fmt.Sprintf(`%s

Você receberá uma lista de itens com id e descricao. Para CADA item, aplique exatamente as regras do prompt base (acima) e retorne SOMENTE um JSON no formato de array, na mesma ordem, onde cada elemento é um objeto com:
{
  "id": <id_do_item>,
  "resultado": { /* JSON conforme especificação (tipo_embalagem, nome_produto, marca, quantidade, peso, categoria) */ }
}

REGRAS CRÍTICAS:
- Não inclua nenhum texto fora do JSON.
- A ordem do array DEVE corresponder à ordem de entrada.
- Repita exatamente o id recebido para cada item.
- Se um campo não existir, use null.

Lista de itens:
%s`, systemPrompt(), list.String())
}
