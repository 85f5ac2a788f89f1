package dto

import (
	"time"

	"github.com/google/uuid"
)

// EvaluateRequest is a raw trigger from a member client. Kind is free-form:
// anything unrecognised is classified as user text.
type EvaluateRequest struct {
	Kind        string                 `json:"kind" validate:"required,max=64"`
	ItineraryId uuid.UUID              `json:"itinerary_id" validate:"required"`
	SlotId      uuid.UUID              `json:"slot_id" validate:"required"`
	Category    string                 `json:"category" validate:"max=64"`
	Text        string                 `json:"text" validate:"max=2000"`
	Confidence  *float64               `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Payload     map[string]interface{} `json:"payload"`
}

type CandidateResponse struct {
	ActivityRef string  `json:"activity_ref"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Vibe        string  `json:"vibe"`
	Indoor      bool    `json:"indoor"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	EnergyCost  int     `json:"energy_cost"`
}

type ProposalResponse struct {
	SlotId             uuid.UUID          `json:"slot_id"`
	ExpectedVersion    int64              `json:"expected_version"`
	CurrentActivityRef string             `json:"current_activity_ref"`
	Replacement        *CandidateResponse `json:"replacement"`
	Origin             string             `json:"origin,omitempty"`
	Dependency         string             `json:"dependency,omitempty"`
}

type BoundedChangeResponse struct {
	SwapId      string             `json:"swap_id"`
	Kind        string             `json:"kind"`
	Depth       int                `json:"depth"`
	Apply       []ProposalResponse `json:"apply"`
	Suggestions []ProposalResponse `json:"suggestions"`
	Unresolved  []ProposalResponse `json:"unresolved"`
	Degraded    bool               `json:"degraded"`
}

type EvaluateResponse struct {
	PivotId         uuid.UUID              `json:"pivot_id"`
	TriggerId       uuid.UUID              `json:"trigger_id"`
	Source          string                 `json:"source"`
	Category        string                 `json:"category"`
	Result          string                 `json:"result"`
	RoutingDecision string                 `json:"routing_decision"`
	Status          string                 `json:"status"`
	BoundedChange   *BoundedChangeResponse `json:"bounded_change"`
	Applied         []SlotResponse         `json:"applied"`
	Degraded        bool                   `json:"degraded"`
	Message         string                 `json:"message,omitempty"`
}

type ActionRequest struct {
	Action       string      `json:"member_action" validate:"required,oneof=accepted dismissed ignored selected_alt expanded_alts"`
	ActivityRef  string      `json:"activity_ref" validate:"required_if=Action selected_alt,max=128"`
	OptInSlotIds []uuid.UUID `json:"opt_in_slot_ids" validate:"max=5,unique"`
}

type ActionResponse struct {
	PivotId      uuid.UUID           `json:"pivot_id"`
	Action       string              `json:"member_action"`
	Status       string              `json:"status"`
	Applied      []SlotResponse      `json:"applied"`
	Alternatives []CandidateResponse `json:"alternatives,omitempty"`
	Reevaluated  bool                `json:"reevaluated"`
	// ProposalId names the proposal that replaced this one, if any.
	ProposalId *uuid.UUID `json:"proposal_id,omitempty"`
	Message    string     `json:"message,omitempty"`
}

type PivotSummaryResponse struct {
	Id              uuid.UUID  `json:"id"`
	AffectedSlotId  uuid.UUID  `json:"affected_slot_id"`
	Source          string     `json:"source"`
	Result          string     `json:"result"`
	RoutingDecision string     `json:"routing_decision"`
	Status          string     `json:"status"`
	Degraded        bool       `json:"degraded"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at"`
}

// FallbackRebuildMessage asks the background worker to regenerate one slot's
// fallback entry.
type FallbackRebuildMessage struct {
	ItineraryId uuid.UUID `json:"itinerary_id"`
	SlotId      uuid.UUID `json:"slot_id"`
}
