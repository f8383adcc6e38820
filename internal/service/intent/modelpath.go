package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/aurum-labs/aurum/internal/model"
)

const systemPrompt = `Você classifica mensagens de clientes de uma joalheria.
Responda SOMENTE com um objeto JSON no formato:
{"intent": "<intent>", "confidence": <0.0-1.0>, "entities": {<chave>: <valor>}}

Intents permitidos:
- product_inquiry: perguntas sobre peças, modelos, materiais
- price_inquiry: perguntas sobre preço, valor, parcelamento
- appointment_request: pedido de visita ou horário na loja
- customization_request: gravação, peça sob medida, personalização
- payment_inquiry: formas de pagamento, pix, cartão, boleto
- delivery_inquiry: prazo de entrega, frete, envio
- warranty_inquiry: garantia, troca, manutenção, conserto
- general_inquiry: qualquer outra coisa

Entidades reconhecidas: jewelry_type, material, occasion, recipient, budget_min, budget_max.`

// replySchema constrains a model reply to the eight model intents with a
// confidence in [0, 1].
var replySchema = gojsonschema.NewStringLoader(buildReplySchema())

func buildReplySchema() string {
	intents := make([]string, len(model.ModelIntents))
	for i, in := range model.ModelIntents {
		intents[i] = strconv.Quote(string(in))
	}
	return `{
  "type": "object",
  "required": ["intent", "confidence"],
  "properties": {
    "intent": {"type": "string", "enum": [` + strings.Join(intents, ", ") + `]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "entities": {"type": "object"}
  }
}`
}

func userPrompt(message string, state model.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Etapa atual da conversa: %s\n", state.Stage)
	if state.Entities.JewelryType != "" {
		fmt.Fprintf(&b, "Peça de interesse: %s\n", state.Entities.JewelryType)
	}
	if state.Entities.Occasion != "" {
		fmt.Fprintf(&b, "Ocasião: %s\n", state.Entities.Occasion)
	}
	fmt.Fprintf(&b, "Mensagem do cliente: %s", message)
	return b.String()
}

type modelReply struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
}

// parseModelReply extracts the first JSON object from raw, validates it
// against replySchema, and converts it. Any failure is an error so the caller
// retries.
func parseModelReply(raw string) (model.Classification, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return model.Classification{}, err
	}

	result, err := gojsonschema.Validate(replySchema, gojsonschema.NewStringLoader(obj))
	if err != nil {
		return model.Classification{}, fmt.Errorf("intent: schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return model.Classification{}, fmt.Errorf("intent: reply violates schema: %s", strings.Join(msgs, "; "))
	}

	var r modelReply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return model.Classification{}, fmt.Errorf("intent: decode reply: %w", err)
	}
	return model.Classification{
		Intent:     model.Intent(r.Intent),
		Confidence: r.Confidence,
		Entities:   entitiesFromModel(r.Entities),
		Source:     model.SourceModel,
	}, nil
}

// extractJSONObject returns the outermost {...} span of s. Models often wrap
// JSON in prose or code fences.
func extractJSONObject(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("intent: no JSON object in reply")
	}
	obj := s[start : end+1]
	if !json.Valid([]byte(obj)) {
		return "", fmt.Errorf("intent: reply is not valid JSON")
	}
	return obj, nil
}

func entitiesFromModel(raw map[string]any) model.Entities {
	var e model.Entities
	for k, v := range raw {
		switch k {
		case "jewelry_type":
			e.JewelryType = stringValue(v)
		case "material":
			e.Material = stringValue(v)
		case "occasion":
			e.Occasion = stringValue(v)
		case "recipient":
			e.Recipient = stringValue(v)
		case "budget_min":
			if f, ok := v.(float64); ok {
				e.BudgetMin = &f
			}
		case "budget_max":
			if f, ok := v.(float64); ok {
				e.BudgetMax = &f
			}
		default:
			if s := stringValue(v); s != "" {
				if e.Extra == nil {
					e.Extra = map[string]string{}
				}
				e.Extra[k] = s
			}
		}
	}
	return e
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
