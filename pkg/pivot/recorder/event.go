package recorder

import (
	"time"

	"trip-pivot-be/pkg/pivot/escalation"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/trigger"

	"github.com/google/uuid"
)

type MemberAction string

const (
	ActionNone         MemberAction = "none"
	ActionAccepted     MemberAction = "accepted"
	ActionDismissed    MemberAction = "dismissed"
	ActionIgnored      MemberAction = "ignored"
	ActionSelectedAlt  MemberAction = "selected_alt"
	ActionExpandedAlts MemberAction = "expanded_alts"
)

func (a MemberAction) Valid() bool {
	switch a {
	case ActionAccepted, ActionDismissed, ActionIgnored, ActionSelectedAlt, ActionExpandedAlts:
		return true
	}
	return false
}

const EventType = "pivot.recorded"

// PivotEvent is the record written to the behavioral-signal log. Once built
// it is never changed.
type PivotEvent struct {
	EventId             uuid.UUID    `json:"event_id"`
	PivotId             uuid.UUID    `json:"pivot_id"`
	TriggerId           uuid.UUID    `json:"trigger_id"`
	Source              string       `json:"source"`
	Category            string       `json:"category,omitempty"`
	ItineraryId         uuid.UUID    `json:"itinerary_id"`
	AffectedSlotId      uuid.UUID    `json:"affected_slot_id"`
	OriginatingMemberId uuid.UUID    `json:"originating_member_id"`
	SuggestedSwapId     string       `json:"suggested_swap_id,omitempty"`
	Result              string       `json:"result,omitempty"`
	RoutingDecision     string       `json:"routing_decision,omitempty"`
	MemberAction        MemberAction `json:"member_action"`
	ActingMemberId      *uuid.UUID   `json:"acting_member_id,omitempty"`
	TimeToActionMs      int64        `json:"time_to_action_ms,omitempty"`
	CascadeSlotIds      []uuid.UUID  `json:"cascade_slot_ids"`
	AppliedSlotIds      []uuid.UUID  `json:"applied_slot_ids"`
	SuggestedSlotIds    []uuid.UUID  `json:"suggested_slot_ids"`
	Degraded            bool         `json:"degraded"`
	Failed              bool         `json:"failed"`
	FailureReason       string       `json:"failure_reason,omitempty"`
	BudgetMs            int64        `json:"budget_ms"`
	ElapsedMs           int64        `json:"elapsed_ms"`
	RecordedAt          time.Time    `json:"recorded_at"`
}

func (e PivotEvent) EventType() string { return EventType }

func (e PivotEvent) Payload() interface{} { return e }

func (e PivotEvent) Timestamp() time.Time { return e.RecordedAt }

// Outcome is everything the pipeline knows about a trigger once it is done
// with it. Bounded and Routing are nil when the pipeline failed before them.
type Outcome struct {
	PivotId        uuid.UUID
	Trigger        trigger.Trigger
	Bounded        *guard.BoundedChange
	Routing        *escalation.Routing
	Applied        []uuid.UUID
	Action         MemberAction
	ActingMemberId *uuid.UUID
	ActedAt        time.Time
	Err            error
}

// NewEvent builds the log record for an outcome.
func NewEvent(o Outcome, now time.Time) PivotEvent {
	t := o.Trigger
	event := PivotEvent{
		EventId:             uuid.New(),
		PivotId:             o.PivotId,
		TriggerId:           t.Id,
		Source:              string(t.Source),
		Category:            t.Category,
		ItineraryId:         t.ItineraryId,
		AffectedSlotId:      t.AffectedSlotId,
		OriginatingMemberId: t.OriginatingMemberId,
		MemberAction:        o.Action,
		ActingMemberId:      o.ActingMemberId,
		CascadeSlotIds:      []uuid.UUID{},
		AppliedSlotIds:      append([]uuid.UUID{}, o.Applied...),
		SuggestedSlotIds:    []uuid.UUID{},
		BudgetMs:            t.LatencyBudget.Milliseconds(),
		ElapsedMs:           now.Sub(t.ReceivedAt).Milliseconds(),
		RecordedAt:          now,
	}
	if event.MemberAction == "" {
		event.MemberAction = ActionNone
	}
	if !o.ActedAt.IsZero() {
		event.TimeToActionMs = o.ActedAt.Sub(t.ReceivedAt).Milliseconds()
	}

	if b := o.Bounded; b != nil {
		event.SuggestedSwapId = b.SwapId
		event.Result = string(b.Kind)
		event.Degraded = b.Degraded
		for _, p := range b.Proposals() {
			if p.SlotId != t.AffectedSlotId {
				event.CascadeSlotIds = append(event.CascadeSlotIds, p.SlotId)
			}
		}
		for _, p := range b.Suggestions {
			event.SuggestedSlotIds = append(event.SuggestedSlotIds, p.SlotId)
		}
	}
	if o.Routing != nil {
		event.RoutingDecision = string(o.Routing.Decision)
	}
	if o.Err != nil {
		event.Failed = true
		event.FailureReason = o.Err.Error()
	}
	if event.MemberAction == ActionNone && t.HasHardBudget() && event.ElapsedMs > event.BudgetMs {
		event.Degraded = true
	}
	return event
}
