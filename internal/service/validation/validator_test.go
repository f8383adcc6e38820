package validation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aurum-labs/aurum/internal/llm"
	"github.com/aurum-labs/aurum/internal/model"
	"github.com/aurum-labs/aurum/internal/retry"
)

type scoreLLM struct {
	reply string
	err   error
	calls atomic.Int32
}

func (s *scoreLLM) Name() string { return "score" }

func (s *scoreLLM) Complete(context.Context, llm.Request) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

func newTestValidator(m llm.Client) *Validator {
	return New(m, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, slog.New(slog.DiscardHandler))
}

func rules() model.ValidationRules {
	return DefaultRules(10, 200, []string{"garantido", "grátis"})
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestCleanResponse(t *testing.T) {
	v := newTestValidator(llm.Noop{})
	res := v.ValidateResponse(context.Background(), "Temos alianças lindas em ouro branco.", Context{Rules: rules()})
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestLengthBounds(t *testing.T) {
	v := newTestValidator(llm.Noop{})

	short := v.ValidateResponse(context.Background(), "Oi!", Context{Rules: rules()})
	assert.False(t, short.IsValid)
	assert.InDelta(t, PenaltyTooShort, short.Confidence, 1e-9)
	assert.Contains(t, short.Errors[0], "structural")

	long := v.ValidateResponse(context.Background(), strings.Repeat("a", 201), Context{Rules: rules()})
	assert.False(t, long.IsValid)
	assert.InDelta(t, PenaltyTooLong, long.Confidence, 1e-9)
}

func TestForbiddenTermsAreAccentInsensitive(t *testing.T) {
	v := newTestValidator(llm.Noop{})
	res := v.ValidateResponse(context.Background(), "A gravação é gratis e o desconto garantido!", Context{Rules: rules()})
	assert.False(t, res.IsValid)
	assert.InDelta(t, PenaltyForbidden, res.Confidence, 1e-9)
	assert.Contains(t, res.Errors[0], "garantido")
	assert.Contains(t, res.Errors[0], "grátis")
}

func TestSensitiveRecheck(t *testing.T) {
	v := newTestValidator(llm.Noop{})
	res := v.ValidateResponse(context.Background(), "Me passe sua senha do cartão.", Context{Rules: rules()})
	assert.False(t, res.IsValid)
	assert.InDelta(t, PenaltySensitive, res.Confidence, 1e-9)
}

func TestBusinessRulesOnlyPenalize(t *testing.T) {
	v := newTestValidator(llm.Noop{})
	r := rules()
	r.MinPrice, r.MaxPrice = fptr(500), fptr(20000)
	r.MinDeliveryDays, r.MaxDeliveryDays = iptr(2), iptr(15)

	res := v.ValidateResponse(context.Background(), "Esse anel sai por R$ 25.000,00 e chega em 30 dias.", Context{Rules: r})
	assert.True(t, res.IsValid, "business rules do not invalidate")
	assert.Len(t, res.Warnings, 2)
	assert.InDelta(t, PenaltyPriceRange*PenaltyDeliveryRange, res.Confidence, 1e-9)

	ok := v.ValidateResponse(context.Background(), "Esse anel sai por R$ 2.500,00 e chega em 5 dias.", Context{Rules: r})
	assert.Empty(t, ok.Warnings)
	assert.InDelta(t, 1.0, ok.Confidence, 1e-9)
}

func TestPenaltiesMultiply(t *testing.T) {
	v := newTestValidator(llm.Noop{})
	res := v.ValidateResponse(context.Background(), "grátis", Context{Rules: rules()})
	assert.InDelta(t, PenaltyTooShort*PenaltyForbidden, res.Confidence, 1e-9)
	assert.Len(t, res.Errors, 2)
}

func TestRelevanceMultipliesConfidence(t *testing.T) {
	m := &scoreLLM{reply: "0.6"}
	v := newTestValidator(m)
	res := v.ValidateResponse(context.Background(), "Temos alianças lindas em ouro branco.",
		Context{Rules: rules(), LastUserMessage: "vocês têm alianças?"})
	assert.InDelta(t, 0.6, res.Relevance, 1e-9)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.True(t, res.IsValid)
}

func TestRelevanceFailureIsNeutral(t *testing.T) {
	m := &scoreLLM{reply: "muito relevante"}
	v := newTestValidator(m)
	res := v.ValidateResponse(context.Background(), "Temos alianças lindas em ouro branco.",
		Context{Rules: rules(), LastUserMessage: "vocês têm alianças?"})
	assert.InDelta(t, 1.0, res.Relevance, 1e-9)
	assert.EqualValues(t, 3, m.calls.Load())

	perm := &scoreLLM{err: &llm.StatusError{Code: 401}}
	res = newTestValidator(perm).ValidateResponse(context.Background(), "Temos alianças lindas em ouro branco.",
		Context{Rules: rules(), LastUserMessage: "oi"})
	assert.InDelta(t, 1.0, res.Relevance, 1e-9)
	assert.EqualValues(t, 1, perm.calls.Load())

	transient := &scoreLLM{err: errors.New("reset")}
	newTestValidator(transient).ValidateResponse(context.Background(), "Temos alianças lindas em ouro branco.",
		Context{Rules: rules(), LastUserMessage: "oi"})
	assert.EqualValues(t, 3, transient.calls.Load())
}

func TestRelevanceSkippedWithoutModel(t *testing.T) {
	res := newTestValidator(llm.Noop{}).ValidateResponse(context.Background(), "Temos alianças lindas em ouro branco.",
		Context{Rules: rules(), LastUserMessage: "vocês têm alianças?"})
	assert.InDelta(t, 1.0, res.Relevance, 1e-9)
}

func TestParseScore(t *testing.T) {
	s, err := parseScore(`{"relevance": 0,85}`)
	assert.NoError(t, err)
	assert.InDelta(t, 0.85, s, 1e-9)

	_, err = parseScore("7")
	assert.ErrorContains(t, err, "outside")

	_, err = parseScore("none")
	assert.Error(t, err)
}
