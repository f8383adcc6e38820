package flow

import "github.com/aurum-labs/aurum/internal/model"

type transitionKey struct {
	from   model.Stage
	intent model.Intent
}

// transitions maps (stage, intent) to the next stage. Pairs not listed keep
// the conversation where it is.
var transitions = map[transitionKey]model.Stage{
	{model.StageWelcome, model.IntentGeneralInquiry}:       model.StageDiscovery,
	{model.StageWelcome, model.IntentProductInquiry}:       model.StageProductPresentation,
	{model.StageWelcome, model.IntentPriceInquiry}:         model.StagePriceDiscussion,
	{model.StageWelcome, model.IntentAppointmentRequest}:   model.StageAppointmentScheduling,
	{model.StageWelcome, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,
	{model.StageWelcome, model.IntentPriceObjection}:       model.StageObjectionHandling,

	{model.StageDiscovery, model.IntentProductInquiry}:       model.StageProductPresentation,
	{model.StageDiscovery, model.IntentPriceInquiry}:         model.StagePriceDiscussion,
	{model.StageDiscovery, model.IntentAppointmentRequest}:   model.StageAppointmentScheduling,
	{model.StageDiscovery, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,
	{model.StageDiscovery, model.IntentPriceObjection}:       model.StageObjectionHandling,

	{model.StageProductPresentation, model.IntentPriceInquiry}:         model.StagePriceDiscussion,
	{model.StageProductPresentation, model.IntentAppointmentRequest}:   model.StageAppointmentScheduling,
	{model.StageProductPresentation, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,
	{model.StageProductPresentation, model.IntentPriceObjection}:       model.StageObjectionHandling,

	{model.StagePriceDiscussion, model.IntentProductInquiry}:       model.StageProductPresentation,
	{model.StagePriceDiscussion, model.IntentAppointmentRequest}:   model.StageAppointmentScheduling,
	{model.StagePriceDiscussion, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,
	{model.StagePriceDiscussion, model.IntentPriceObjection}:       model.StageObjectionHandling,

	{model.StageCustomizationDiscussion, model.IntentProductInquiry}:     model.StageProductPresentation,
	{model.StageCustomizationDiscussion, model.IntentPriceInquiry}:       model.StagePriceDiscussion,
	{model.StageCustomizationDiscussion, model.IntentAppointmentRequest}: model.StageAppointmentScheduling,
	{model.StageCustomizationDiscussion, model.IntentPriceObjection}:     model.StageObjectionHandling,

	{model.StageAppointmentScheduling, model.IntentGreeting}:             model.StageFollowUp,
	{model.StageAppointmentScheduling, model.IntentGeneralInquiry}:       model.StageFollowUp,
	{model.StageAppointmentScheduling, model.IntentProductInquiry}:       model.StageDiscovery,
	{model.StageAppointmentScheduling, model.IntentPriceInquiry}:         model.StagePriceDiscussion,
	{model.StageAppointmentScheduling, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,
	{model.StageAppointmentScheduling, model.IntentPriceObjection}:       model.StageObjectionHandling,

	{model.StageObjectionHandling, model.IntentGeneralInquiry}:       model.StageFollowUp,
	{model.StageObjectionHandling, model.IntentProductInquiry}:       model.StageProductPresentation,
	{model.StageObjectionHandling, model.IntentPriceInquiry}:         model.StagePriceDiscussion,
	{model.StageObjectionHandling, model.IntentAppointmentRequest}:   model.StageAppointmentScheduling,
	{model.StageObjectionHandling, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,

	{model.StageFollowUp, model.IntentGreeting}:             model.StageDiscovery,
	{model.StageFollowUp, model.IntentProductInquiry}:       model.StageDiscovery,
	{model.StageFollowUp, model.IntentPriceInquiry}:         model.StagePriceDiscussion,
	{model.StageFollowUp, model.IntentAppointmentRequest}:   model.StageAppointmentScheduling,
	{model.StageFollowUp, model.IntentCustomizationRequest}: model.StageCustomizationDiscussion,
	{model.StageFollowUp, model.IntentPriceObjection}:       model.StageObjectionHandling,
}

// Next returns the stage that follows from for intent. It is a pure lookup:
// unknown stages fall back to welcome and unknown pairs self-loop.
func Next(from model.Stage, intent model.Intent) model.Stage {
	if !from.Valid() {
		from = model.StageWelcome
	}
	if to, ok := transitions[transitionKey{from, intent}]; ok {
		return to
	}
	return from
}
