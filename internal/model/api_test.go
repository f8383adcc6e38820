package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/model"
)

// ptr is a convenience helper for pointer literals in test cases.
func ptr[T any](v T) *T { return &v }

// ---- ProcessMessageRequest -----------------------------------------------

func TestProcessMessageRequest_HappyPath(t *testing.T) {
	r := model.ProcessMessageRequest{ContactID: "5511999990000", Text: "oi"}
	assert.NoError(t, r.Validate())
}

func TestProcessMessageRequest_MissingContact(t *testing.T) {
	err := model.ProcessMessageRequest{Text: "oi"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact_id")
}

func TestProcessMessageRequest_BlankText(t *testing.T) {
	err := model.ProcessMessageRequest{ContactID: "c1", Text: "   "}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text")
}

func TestProcessMessageRequest_TextAtExactMax(t *testing.T) {
	r := model.ProcessMessageRequest{ContactID: "c1", Text: strings.Repeat("á", model.MaxMessageLen)}
	assert.NoError(t, r.Validate(), "limit counts characters, not bytes")
}

func TestProcessMessageRequest_TextOverMax(t *testing.T) {
	r := model.ProcessMessageRequest{ContactID: "c1", Text: strings.Repeat("x", model.MaxMessageLen+1)}
	assert.Error(t, r.Validate())
}

func TestProcessMessageRequest_ContactOverMax(t *testing.T) {
	r := model.ProcessMessageRequest{ContactID: strings.Repeat("9", model.MaxContactIDLen+1), Text: "oi"}
	assert.Error(t, r.Validate())
}

// ---- HandoffChoiceRequest ------------------------------------------------

func TestHandoffChoiceRequest(t *testing.T) {
	assert.NoError(t, model.HandoffChoiceRequest{Choice: model.ChoiceSpecialist}.Validate())
	assert.NoError(t, model.HandoffChoiceRequest{Choice: model.ChoiceAssistant}.Validate())
	assert.Error(t, model.HandoffChoiceRequest{Choice: "maybe"}.Validate())
}

// ---- UpdatePolicyRequest -------------------------------------------------

func TestUpdatePolicyRequest_ThresholdRange(t *testing.T) {
	assert.NoError(t, model.UpdatePolicyRequest{ThresholdValue: ptr(0.0)}.Validate())
	assert.NoError(t, model.UpdatePolicyRequest{ThresholdValue: ptr(1.0)}.Validate())
	assert.Error(t, model.UpdatePolicyRequest{ThresholdValue: ptr(-0.1)}.Validate())
	assert.Error(t, model.UpdatePolicyRequest{ThresholdValue: ptr(1.1)}.Validate())
}

func TestUpdatePolicyRequest_BlankFallbackRejected(t *testing.T) {
	err := model.UpdatePolicyRequest{FallbackMessage: ptr("  ")}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback_message")
}

func TestUpdatePolicyRequest_ApplyKeepsUnsetFields(t *testing.T) {
	base := model.GuardrailPolicy{
		PolicyType:      model.PolicyConfidence,
		Enabled:         true,
		ThresholdValue:  0.7,
		FallbackMessage: "original",
		HandoffTrigger:  false,
	}
	got := model.UpdatePolicyRequest{ThresholdValue: ptr(0.85)}.Apply(base)
	assert.Equal(t, 0.85, got.ThresholdValue)
	assert.True(t, got.Enabled)
	assert.Equal(t, "original", got.FallbackMessage)

	got = model.UpdatePolicyRequest{Enabled: ptr(false), HandoffTrigger: ptr(true)}.Apply(base)
	assert.False(t, got.Enabled)
	assert.True(t, got.HandoffTrigger)
	assert.Equal(t, 0.7, got.ThresholdValue)
}

// ---- EvaluateDraftRequest ------------------------------------------------

func TestEvaluateDraftRequest(t *testing.T) {
	ok := model.EvaluateDraftRequest{Intent: model.IntentPriceInquiry, Confidence: 0.9, Draft: "O valor é R$ 100"}
	assert.NoError(t, ok.Validate())

	noIntent := ok
	noIntent.Intent = ""
	assert.Error(t, noIntent.Validate())

	badConf := ok
	badConf.Confidence = 2
	assert.Error(t, badConf.Validate())

	noDraft := ok
	noDraft.Draft = ""
	assert.Error(t, noDraft.Validate())
}
