// Package flow drives the per-contact conversation state machine and renders
// the draft reply for the stage the conversation lands in.
package flow

import (
	"strconv"
	"strings"

	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/service/intent"
)

// Handoff thresholds.
const (
	MaxObjections          = 3
	MaxPriceDiscussionRuns = 10
	HighBudget             = 10000.0
	maxFollowUps           = 2
)

// Sentiment is the coarse tone detected in the customer's message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

var (
	positiveTerms = []string{
		"adorei", "amei", "lindo", "linda", "perfeit*", "maravilh*", "otimo", "otima",
		"excelente", "obrigad*", "gostei", "encantad*",
	}
	negativeTerms = []string{
		"triste", "chatead*", "decepcion*", "problema", "ruim", "pessim*", "demor*",
		"reclama*", "insatisfeit*", "irritad*",
	}
)

const (
	positivePrefix = "Que alegria! "
	negativePrefix = "Sinto muito por isso, quero muito te ajudar. "
	urgentSuffix   = " Como é urgente, posso priorizar seu atendimento com um especialista."
	calmSuffix     = " Fique à vontade, sem pressa nenhuma."
)

var stageTemplates = map[model.Stage]Template{
	model.StageWelcome: MustTemplate(
		"Olá, {name}! Seja bem-vindo(a) à nossa joalheria. Estou aqui para ajudar você a encontrar a joia perfeita."),
	model.StageDiscovery: MustTemplate(
		"Que bom ter você aqui, {name}! Vamos encontrar algo especial para {recipient}."),
	model.StageProductPresentation: MustTemplate(
		"Temos opções lindas em {product_name}, pensadas para {occasion}."),
	model.StagePriceDiscussion: MustTemplate(
		"O valor de {product_name} é {price}. Trabalhamos com parcelamento e condições especiais."),
	model.StageCustomizationDiscussion: MustTemplate(
		"Adoramos criar peças únicas! Podemos personalizar {product_name} com gravação ou design exclusivo para {recipient}."),
	model.StageAppointmentScheduling: MustTemplate(
		"Será um prazer receber você, {name}! Qual dia e horário ficam melhores para sua visita à loja?"),
	model.StageObjectionHandling: MustTemplate(
		"Entendo perfeitamente, {name}. Temos opções em diferentes faixas de valor e condições de pagamento que cabem no seu orçamento."),
	model.StageFollowUp: MustTemplate(
		"Fico à disposição, {name}! Se quiser rever alguma peça para {occasion}, é só me chamar."),
}

// intentTemplates answer the deeper intents that do not move the stage.
var intentTemplates = map[model.Intent]Template{
	model.IntentPaymentInquiry: MustTemplate(
		"Aceitamos Pix, cartão de crédito em até 10x sem juros e boleto, {name}."),
	model.IntentDeliveryInquiry: MustTemplate(
		"Entregamos para todo o Brasil com seguro e embalagem para presente. O prazo depende da sua cidade e da peça escolhida."),
	model.IntentWarrantyInquiry: MustTemplate(
		"Todas as nossas joias têm certificado de garantia, e fazemos limpeza e manutenção, {name}."),
	model.IntentHumanRequest: MustTemplate(
		"Claro, {name}! Vou chamar um de nossos especialistas para continuar o atendimento."),
}

type question struct {
	category string // "" always applies
	text     string
}

const (
	catOccasion    = "occasion"
	catJewelryType = "jewelry_type"
	catMaterial    = "material"
	catBudget      = "budget"
)

var stageQuestions = map[model.Stage][]question{
	model.StageWelcome: {
		{catJewelryType, "Você procura alguma peça em especial?"},
		{catOccasion, "É para alguma ocasião especial?"},
	},
	model.StageDiscovery: {
		{catOccasion, "Qual é a ocasião?"},
		{catJewelryType, "Que tipo de joia você imagina: anel, colar, brinco ou pulseira?"},
		{catMaterial, "Tem preferência de material, como ouro, ouro branco ou prata?"},
		{catBudget, "Você tem uma faixa de valor em mente?"},
	},
	model.StageProductPresentation: {
		{catMaterial, "Prefere ouro amarelo, ouro branco ou ouro rosé?"},
		{catBudget, "Qual faixa de valor fica confortável para você?"},
		{"", "Quer que eu envie fotos de alguns modelos?"},
	},
	model.StagePriceDiscussion: {
		{catBudget, "Qual valor você pretende investir?"},
		{"", "Prefere pagar à vista ou parcelado?"},
	},
	model.StageCustomizationDiscussion: {
		{catJewelryType, "Qual peça você gostaria de personalizar?"},
		{catMaterial, "Em qual material?"},
		{"", "Tem alguma gravação ou desenho em mente?"},
	},
	model.StageAppointmentScheduling: {
		{"", "Prefere atendimento na loja ou por videochamada?"},
	},
	model.StageObjectionHandling: {
		{catBudget, "Qual valor ficaria confortável para você?"},
		{"", "Quer conhecer opções com um valor mais acessível?"},
	},
	model.StageFollowUp: {
		{"", "Posso te ajudar com mais alguma coisa?"},
	},
}

// Input is everything Respond needs for one turn.
type Input struct {
	State          model.ConversationState
	Classification model.Classification
	Message        string
	// Price is the confirmed catalog price of the product under discussion,
	// if one was resolved.
	Price *float64
}

// Result is the flow engine's decision for one turn.
type Result struct {
	NextStage model.Stage
	Draft     string
	FollowUps []string
	Tone      Sentiment
	Urgency   model.Urgency
	Entities  model.Entities
	Handoff   bool
}

// Engine renders replies. The zero value is not usable; call New.
type Engine struct {
	stages  map[model.Stage]Template
	intents map[model.Intent]Template
}

// New returns an Engine with the built-in templates.
func New() *Engine {
	return &Engine{stages: stageTemplates, intents: intentTemplates}
}

// Next is the transition-table lookup.
func (e *Engine) Next(stage model.Stage, in model.Intent) model.Stage {
	return Next(stage, in)
}

// Respond computes the next stage and the draft reply for one turn.
func (e *Engine) Respond(in Input) Result {
	next := Next(in.State.Stage, in.Classification.Intent)
	ents := in.State.Entities.Merge(in.Classification.Entities)

	after := in.State
	after.Entities = ents
	after.Stage = next

	vals := Values{
		Name:        in.State.ProfileName(),
		Occasion:    ents.Occasion,
		Recipient:   ents.Recipient,
		ProductName: productName(ents),
	}
	if in.Price != nil {
		vals.Price = FormatBRL(*in.Price)
	}

	tmpl, ok := e.intents[in.Classification.Intent]
	if !ok {
		tmpl = e.stages[next]
	}
	tone := DetectSentiment(in.Message)

	var b strings.Builder
	switch tone {
	case SentimentPositive:
		b.WriteString(positivePrefix)
	case SentimentNegative:
		b.WriteString(negativePrefix)
	}
	b.WriteString(tmpl.Render(vals))
	switch ents.Urgency {
	case model.UrgencyHigh:
		b.WriteString(urgentSuffix)
	case model.UrgencyLow:
		b.WriteString(calmSuffix)
	}

	followUps := FollowUps(next, ents)
	for _, q := range followUps {
		b.WriteString("\n\n")
		b.WriteString(q)
	}

	return Result{
		NextStage: next,
		Draft:     b.String(),
		FollowUps: followUps,
		Tone:      tone,
		Urgency:   ents.Urgency,
		Entities:  ents,
		Handoff:   ShouldTransferToHuman(after, in.Classification.Intent),
	}
}

func productName(e model.Entities) string {
	if e.ProductName != "" {
		return e.ProductName
	}
	if e.JewelryType == "" {
		return ""
	}
	switch e.Material {
	case "":
		return e.JewelryType
	case "ouro_branco":
		return e.JewelryType + " de ouro branco"
	case "ouro_rose":
		return e.JewelryType + " de ouro rosé"
	default:
		return e.JewelryType + " de " + e.Material
	}
}

// DetectSentiment classifies message tone from fixed word lists. Negative
// words win over positive ones.
func DetectSentiment(message string) Sentiment {
	text := intent.Normalize(message)
	switch {
	case intent.ContainsAny(text, negativeTerms):
		return SentimentNegative
	case intent.ContainsAny(text, positiveTerms):
		return SentimentPositive
	default:
		return SentimentNeutral
	}
}

// FollowUps picks up to two questions for stage, skipping categories the
// entities already answer.
func FollowUps(stage model.Stage, e model.Entities) []string {
	var out []string
	for _, q := range stageQuestions[stage] {
		if known(q.category, e) {
			continue
		}
		out = append(out, q.text)
		if len(out) == maxFollowUps {
			break
		}
	}
	return out
}

func known(category string, e model.Entities) bool {
	switch category {
	case catOccasion:
		return e.Occasion != ""
	case catJewelryType:
		return e.JewelryType != ""
	case catMaterial:
		return e.Material != ""
	case catBudget:
		return e.HasBudget()
	}
	return false
}

// ShouldTransferToHuman reports whether the conversation, with this turn's
// entities already merged, should be offered a specialist. It is advisory.
func ShouldTransferToHuman(state model.ConversationState, in model.Intent) bool {
	switch {
	case in == model.IntentHumanRequest:
		return true
	case state.Entities.Objections >= MaxObjections:
		return true
	case state.StageVisits(model.StagePriceDiscussion) > MaxPriceDiscussionRuns:
		return true
	case state.Entities.MaxBudget() > HighBudget:
		return true
	}
	return false
}

// FormatBRL formats v as Brazilian reais: 4500.5 becomes "R$ 4.500,50".
func FormatBRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(v*100 + 0.5)
	whole := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("R$ ")
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	frac := cents % 100
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}
