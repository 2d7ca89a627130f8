package nfce

import (
	"regexp"
	"strings"
)

// Heuristic extraction of issuer data and line items from the readable-text
// rendering of a state verification page. The layout varies a lot between
// state portals; the only reliable per-item anchor is the "(Código: X)"
// marker, so everything else is found by scanning a window forward from that
// anchor. Numeric values keep their raw Brazilian formatting here —
// conversion happens at persistence time.

// ExtractedIssuer carries whatever issuer fields the page yielded. Any
// field may be empty.
type ExtractedIssuer struct {
	TaxId             string `json:"cnpj"`
	Name              string `json:"nome"`
	StateRegistration string `json:"ie"`
}

// ExtractedItem is one receipt line as found on the page, all raw strings.
type ExtractedItem struct {
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
	Quantity    string `json:"qtde"`
	Unit        string `json:"un"`
	UnitPrice   string `json:"unitario"`
	TotalPrice  string `json:"total"`
}

// ExtractResult is the outcome of one page scan. A page with no
// recognizable content produces empty fields and a nil item slice, never an
// error.
type ExtractResult struct {
	Issuer ExtractedIssuer `json:"emitente"`
	Items  []ExtractedItem `json:"itens"`
}

var (
	cnpjMaskedRe   = regexp.MustCompile(`(?i)CNPJ\s*[:-]?\s*(\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2})`)
	cnpjBareRe     = regexp.MustCompile(`(?i)CNPJ\s*[:-]?\s*(\d{14})`)
	cnpjLineRe     = regexp.MustCompile(`(?i)CNPJ\s*[:-]?\s*(\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}|\d{14})`)
	labelLineRe    = regexp.MustCompile(`(?i)CNPJ|CPF|Endere|IE|IM`)
	legalNameRe    = regexp.MustCompile(`(?i)Raz[aã]o\s*Social\s*[:-]?\s*(.+)`)
	issuerLabelRe  = regexp.MustCompile(`(?i)Emitente\s*[:-]?\s*(.+)`)
	stateRegRe     = regexp.MustCompile(`(?i)(Inscri[cç][aã]o\s*Estadual|I\s*E)\s*[:-]?\s*([\w.\-]+)`)
	itemAnchorRe   = regexp.MustCompile(`(?i)\(C[oó]digo\s*:\s*([A-Za-z0-9.\-]+)\s*\)`)
	anchorSuffixRe = regexp.MustCompile(`(?i)\(C[oó]digo\s*:\s*[0-9.]+\s*\)\s*$`)
	descRejectRe   = regexp.MustCompile(`(?i).*(Avenida|Rua|Rodovia|Travessa|Alameda|Estrada).*|^(Vl\.|Qtde\.|UN\b|CNPJ|CPF|Chave|Emitente)`)
	prevRejectRe   = regexp.MustCompile(`.*(Avenida|Rua|Rodovia|Travessa|Alameda|Estrada).*|:`)
	quantityRe     = regexp.MustCompile(`(?i)Qtde\.?\s*:\s*([0-9.,]+)`)
	unitRe         = regexp.MustCompile(`(?i)UN\s*:\s*([A-Za-z]{1,6})`)
	unitPriceRe    = regexp.MustCompile(`(?i)Vl\.\s*Unit\.?\s*:\s*([0-9.,]+)`)
	totalAnchorRe  = regexp.MustCompile(`(?i)Vl\.?\s*Total`)
	numericTokenRe = regexp.MustCompile(`\b([0-9][0-9.,]*)\b`)
	spaceRunRe     = regexp.MustCompile(`[\t ]+`)
)

// NormalizeSpaces collapses NBSP/tab/space runs and trims the result.
func NormalizeSpaces(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// ExtractReceiptText scans the readable text of a verification page.
func ExtractReceiptText(text string) *ExtractResult {
	out := &ExtractResult{}
	// readable-proxy output wraps emphasized runs in markdown bold markers
	tn := strings.ReplaceAll(text, "**", "")

	if m := cnpjMaskedRe.FindStringSubmatch(tn); m != nil {
		out.Issuer.TaxId = m[1]
	} else if m := cnpjBareRe.FindStringSubmatch(tn); m != nil {
		out.Issuer.TaxId = m[1]
	}

	out.Issuer.Name = extractIssuerName(tn)

	if m := stateRegRe.FindStringSubmatch(tn); m != nil {
		out.Issuer.StateRegistration = m[2]
	}

	out.Items = extractItems(tn)
	return out
}

// extractIssuerName prefers the non-empty line right above the CNPJ line,
// skipping anything that is itself a label line, then falls back to a
// "Razão Social:" / "Emitente:" labeled value.
func extractIssuerName(tn string) string {
	var lines []string
	for _, raw := range strings.Split(tn, "\n") {
		if l := NormalizeSpaces(strings.TrimSuffix(raw, "\r")); l != "" {
			lines = append(lines, l)
		}
	}

	for i, line := range lines {
		if !cnpjLineRe.MatchString(line) {
			continue
		}
		if i > 0 {
			prev := lines[i-1]
			if len(prev) > 2 && !labelLineRe.MatchString(prev) {
				return clip(prev, 120)
			}
		}
		break
	}

	if m := legalNameRe.FindStringSubmatch(tn); m != nil {
		return clip(NormalizeSpaces(m[1]), 120)
	}
	if m := issuerLabelRe.FindStringSubmatch(tn); m != nil {
		return clip(NormalizeSpaces(m[1]), 120)
	}
	return ""
}

func extractItems(tn string) []ExtractedItem {
	var items []ExtractedItem
	for _, loc := range itemAnchorRe.FindAllStringSubmatchIndex(tn, -1) {
		code := tn[loc[2]:loc[3]]
		idx := loc[0]

		items = append(items, ExtractedItem{
			Code:        code,
			Description: descriptionAt(tn, idx),
			Quantity:    firstGroup(quantityRe, tn[idx:]),
			Unit:        firstGroup(unitRe, tn[idx:]),
			UnitPrice:   firstGroup(unitPriceRe, tn[idx:]),
			TotalPrice:  totalAfterAnchor(tn[idx:]),
		})
	}
	return items
}

// descriptionAt takes the same-line text up to the anchor; when that is
// empty or looks like an address/label line it falls back to the previous
// physical line.
func descriptionAt(tn string, anchorIdx int) string {
	lineStart := strings.LastIndex(tn[:anchorIdx], "\n")
	if lineStart == -1 {
		lineStart = 0
	} else {
		lineStart++
	}
	desc := strings.TrimSpace(anchorSuffixRe.ReplaceAllString(NormalizeSpaces(tn[lineStart:anchorIdx]), ""))

	if desc == "" || descRejectRe.MatchString(desc) {
		prevEnd := -1
		if lineStart > 1 {
			prevEnd = strings.LastIndex(tn[:lineStart-1], "\n")
		}
		if lineStart >= 1 {
			prev := tn[prevEnd+1 : lineStart-1]
			cand := strings.TrimSpace(anchorSuffixRe.ReplaceAllString(NormalizeSpaces(prev), ""))
			if cand != "" && !prevRejectRe.MatchString(cand) {
				desc = cand
			}
		}
	}
	return desc
}

// totalAfterAnchor finds the first numeric token following a "Vl. Total"
// anchor within the forward window.
func totalAfterAnchor(forward string) string {
	anchor := totalAnchorRe.FindStringIndex(forward)
	if anchor == nil {
		return ""
	}
	return firstGroup(numericTokenRe, forward[anchor[0]:])
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
