package model_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-labs/aurum/internal/model"
)

func TestParseStage(t *testing.T) {
	for _, s := range model.Stages {
		got, err := model.ParseStage(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := model.ParseStage("checkout")
	assert.Error(t, err)
}

func TestEntitiesMerge_NewerWinsAndObjectionsAccumulate(t *testing.T) {
	old := model.Entities{
		JewelryType: "anel",
		Material:    "prata",
		BudgetMax:   ptr(2000.0),
		Objections:  1,
		Extra:       map[string]string{"city": "Recife"},
	}
	newer := model.Entities{
		Material:   "ouro",
		Objections: 1,
		Extra:      map[string]string{"size": "14"},
	}
	got := old.Merge(newer)

	assert.Equal(t, "anel", got.JewelryType, "unset newer value keeps old")
	assert.Equal(t, "ouro", got.Material)
	require.NotNil(t, got.BudgetMax)
	assert.Equal(t, 2000.0, *got.BudgetMax)
	assert.Equal(t, 2, got.Objections)
	assert.Equal(t, map[string]string{"city": "Recife", "size": "14"}, got.Extra)

	// Merge must not alias the receiver's map.
	got.Extra["city"] = "Natal"
	assert.Equal(t, "Recife", old.Extra["city"])
}

func TestEntitiesMaxBudget(t *testing.T) {
	assert.Equal(t, 0.0, model.Entities{}.MaxBudget())
	assert.Equal(t, 12000.0, model.Entities{BudgetMin: ptr(5000.0), BudgetMax: ptr(12000.0)}.MaxBudget())
}

func TestStageVisits(t *testing.T) {
	s := model.ConversationState{Timeline: []model.TimelineEntry{
		{Stage: model.StageWelcome},
		{Stage: model.StagePriceDiscussion},
		{Stage: model.StagePriceDiscussion},
	}}
	assert.Equal(t, 2, s.StageVisits(model.StagePriceDiscussion))
	assert.Equal(t, 0, s.StageVisits(model.StageFollowUp))
}

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		c    float64
		want int
	}{
		{0.0, 0},
		{0.29, 0},
		{0.3, 1},
		{0.49, 1},
		{0.5, 2},
		{0.7, 3},
		{0.89, 3},
		{0.9, 4},
		{1.0, 4},
		{1.5, 4},
		{-1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, model.BucketIndex(tt.c), "confidence %v", tt.c)
	}
}

func TestDefaultPolicy(t *testing.T) {
	tenant := uuid.New()
	conf := model.DefaultPolicy(tenant, model.PolicyConfidence, 0.7)
	assert.True(t, conf.Enabled)
	assert.Equal(t, 0.7, conf.ThresholdValue)
	assert.Contains(t, conf.FallbackMessage, "{intent}")

	price := model.DefaultPolicy(tenant, model.PolicyPrice, 0.7)
	assert.True(t, price.HandoffTrigger)
	assert.Equal(t, model.PriceFallbackText, price.FallbackMessage)
	assert.Equal(t, uuid.Nil, price.ID)
}

func TestRulesFromMetadata(t *testing.T) {
	defaults := model.ValidationRules{MinLength: 10, MaxLength: 1000, ForbiddenTerms: []string{"grátis"}}

	got := model.RulesFromMetadata(map[string]any{
		"max_length":        float64(500),
		"forbidden_terms":   []any{"concorrente", 3},
		"min_price":         float64(100),
		"max_delivery_days": float64(30),
		"unknown":           "ignored",
	}, defaults)

	assert.Equal(t, 10, got.MinLength)
	assert.Equal(t, 500, got.MaxLength)
	assert.Equal(t, []string{"concorrente"}, got.ForbiddenTerms)
	require.NotNil(t, got.MinPrice)
	assert.Equal(t, 100.0, *got.MinPrice)
	assert.Nil(t, got.MaxPrice)
	require.NotNil(t, got.MaxDeliveryDays)
	assert.Equal(t, 30, *got.MaxDeliveryDays)

	assert.Equal(t, defaults, model.RulesFromMetadata(nil, defaults))
}

func TestFallbackClassification(t *testing.T) {
	c := model.FallbackClassification()
	assert.Equal(t, model.IntentGeneralInquiry, c.Intent)
	assert.Equal(t, 0.7, c.Confidence)
	assert.Equal(t, model.Entities{}, c.Entities)
}
