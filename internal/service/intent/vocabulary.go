package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// term is one vocabulary entry. Match is accent-free lowercase; a trailing
// '*' makes it a prefix ("personaliz*" matches "personalizar"). Value is the
// canonical entity value stored when the term matches.
type term struct {
	Match string
	Value string
}

// Lists are ordered: the first matching entry wins, so longer and more
// specific phrases come first.
var (
	greetingTerms = []string{
		"bom dia", "boa tarde", "boa noite", "ola", "oi", "oie", "opa", "e ai", "hello", "hey",
	}

	humanTerms = []string{
		"falar com atendente", "falar com alguem", "falar com uma pessoa", "pessoa de verdade",
		"atendente", "humano", "vendedor", "vendedora", "especialista",
	}

	objectionTerms = []string{
		"muito caro", "fora do orcamento", "nao cabe no bolso", "nao tenho esse valor",
		"caro", "alto", "salgado", "puxado", "mais barato", "desconto",
	}

	priceTerms = []string{
		"quanto custa", "quanto sai", "quanto fica", "quanto e", "preco", "valor",
		"custa", "orcamento", "parcel*", "r$", "reais",
	}

	appointmentTerms = []string{
		"atendimento presencial", "ir na loja", "ir a loja", "agend*", "horario",
		"visita", "visitar", "marcar", "reuniao", "consulta",
	}

	customizationTerms = []string{
		"sob medida", "sob encomenda", "desenho proprio", "personaliz*", "customiz*",
		"gravar", "gravacao", "gravado", "exclusiv*",
	}

	productTerms = []string{
		"joia", "produto", "peca", "modelo", "catalogo", "colecao", "opcoes", "mostrar",
	}

	jewelryTerms = []term{
		{"alianca", "aliança"},
		{"solitario", "anel"},
		{"anel", "anel"},
		{"aneis", "anel"},
		{"gargantilha", "colar"},
		{"colar", "colar"},
		{"colares", "colar"},
		{"brinco", "brinco"},
		{"pulseira", "pulseira"},
		{"pingente", "pingente"},
		{"relogio", "relógio"},
	}

	materialTerms = []term{
		{"ouro branco", "ouro_branco"},
		{"ouro rose", "ouro_rose"},
		{"ouro rosa", "ouro_rose"},
		{"ouro amarelo", "ouro"},
		{"ouro", "ouro"},
		{"prata", "prata"},
		{"platina", "platina"},
		{"diamante", "diamante"},
		{"brilhante", "diamante"},
		{"perola", "pérola"},
	}

	occasionTerms = []term{
		{"dia dos namorados", "dia dos namorados"},
		{"dia das maes", "dia das mães"},
		{"pedido de casamento", "noivado"},
		{"casamento", "casamento"},
		{"noivado", "noivado"},
		{"bodas", "bodas"},
		{"aniversario", "aniversário"},
		{"formatura", "formatura"},
		{"natal", "natal"},
		{"batizado", "batizado"},
	}

	recipientTerms = []term{
		{"esposa", "esposa"},
		{"marido", "marido"},
		{"namorada", "namorada"},
		{"namorado", "namorado"},
		{"noiva", "noiva"},
		{"noivo", "noivo"},
		{"mae", "mãe"},
		{"filha", "filha"},
		{"filho", "filho"},
		{"amiga", "amiga"},
		{"para mim", "si mesmo"},
	}

	lowUrgencyTerms  = []string{"sem pressa", "sem urgencia", "com calma", "mais para frente"}
	highUrgencyTerms = []string{"urgente", "urgencia", "hoje", "amanha", "o quanto antes", "pra ja", "rapido"}
)

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s and strips diacritics so "Aliança" and "alianca"
// match the same vocabulary entry.
func Normalize(s string) string {
	out, _, err := transform.String(accentStripper, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// containsTerm reports whether normalized text contains t at a word start.
// The match must also end at a word boundary, optionally after a plural "s"
// or "es", unless t is a '*' prefix.
func containsTerm(text, t string) bool {
	prefix := strings.HasSuffix(t, "*")
	t = strings.TrimSuffix(t, "*")
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], t)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(t)
		if boundaryBefore(text, start) && (prefix || boundaryAfter(text, end)) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	return i == 0 || !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	rest := text[i:]
	switch {
	case strings.HasPrefix(rest, "es") && (len(rest) == 2 || !isWordByte(rest[2])):
		return true
	case strings.HasPrefix(rest, "s") && (len(rest) == 1 || !isWordByte(rest[1])):
		return true
	}
	return len(rest) == 0 || !isWordByte(rest[0])
}

// isWordByte treats ASCII letters and digits as word characters. Text is
// accent-stripped before matching, so ASCII covers the vocabulary.
func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// ContainsAny reports whether normalized text contains any of terms, using
// the same word-boundary rules as the classifier vocabularies.
func ContainsAny(text string, terms []string) bool {
	_, ok := matchAny(text, terms)
	return ok
}

func matchAny(text string, terms []string) (string, bool) {
	for _, t := range terms {
		if containsTerm(text, t) {
			return t, true
		}
	}
	return "", false
}

func matchValue(text string, terms []term) string {
	for _, t := range terms {
		if containsTerm(text, t.Match) {
			return t.Value
		}
	}
	return ""
}
