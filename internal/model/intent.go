package model

// Intent is what the customer is trying to do with a message.
type Intent string

const (
	IntentGreeting             Intent = "greeting"
	IntentProductInquiry       Intent = "product_inquiry"
	IntentPriceInquiry         Intent = "price_inquiry"
	IntentAppointmentRequest   Intent = "appointment_request"
	IntentCustomizationRequest Intent = "customization_request"
	IntentPriceObjection       Intent = "price_objection"
	IntentGeneralInquiry       Intent = "general_inquiry"

	// Deeper taxonomy only the language model distinguishes.
	IntentPaymentInquiry  Intent = "payment_inquiry"
	IntentDeliveryInquiry Intent = "delivery_inquiry"
	IntentWarrantyInquiry Intent = "warranty_inquiry"

	IntentHumanRequest Intent = "human_request"
)

// ModelIntents are the only intents a language model may return.
var ModelIntents = []Intent{
	IntentProductInquiry,
	IntentPriceInquiry,
	IntentAppointmentRequest,
	IntentCustomizationRequest,
	IntentPaymentInquiry,
	IntentDeliveryInquiry,
	IntentWarrantyInquiry,
	IntentGeneralInquiry,
}

// ClassificationSource records which path produced a classification.
type ClassificationSource string

const (
	SourceKeyword  ClassificationSource = "keyword"
	SourceModel    ClassificationSource = "llm"
	SourceFallback ClassificationSource = "fallback"
)

// Classification is the output of the intent classifier.
type Classification struct {
	Intent     Intent               `json:"intent"`
	Confidence float64              `json:"confidence"`
	Entities   Entities             `json:"entities"`
	Source     ClassificationSource `json:"source"`
}

// FallbackClassification is returned when every model attempt failed. The
// confidence sits at the default guardrail threshold so an unreadable model
// reply does not by itself force a confirmation question.
func FallbackClassification() Classification {
	return Classification{
		Intent:     IntentGeneralInquiry,
		Confidence: 0.7,
		Entities:   Entities{},
		Source:     SourceFallback,
	}
}
