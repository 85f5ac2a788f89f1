package trigger

import (
	"time"

	"github.com/google/uuid"
)

type Source string

const (
	SourceVenueClosed  Source = "venue_closed"
	SourceWeather      Source = "weather"
	SourceMoodSignal   Source = "mood_signal"
	SourceTransitDelay Source = "transit_delay"
	SourceCascade      Source = "cascade"
	SourceUserText     Source = "user_text"
	SourceFullRebuild  Source = "full_rebuild_requested"
)

// Preference tells the evaluator which kind of alternative suits the trigger.
type Preference string

const (
	PreferAdjacent  Preference = "adjacent"
	PreferIndoor    Preference = "indoor"
	PreferOpposite  Preference = "opposite"
	PreferLowEnergy Preference = "low_energy"
	PreferNearest   Preference = "nearest"
)

// Trigger is an immutable, classified request to re-evaluate part of an
// itinerary. Build it with Classifier.Classify; never mutate it afterwards.
type Trigger struct {
	Id                  uuid.UUID              `json:"id"`
	Source              Source                 `json:"source"`
	ItineraryId         uuid.UUID              `json:"itinerary_id"`
	AffectedSlotId      uuid.UUID              `json:"affected_slot_id"`
	OriginatingMemberId uuid.UUID              `json:"originating_member_id"`
	Category            string                 `json:"category"`
	Confidence          float64                `json:"confidence"`
	Preference          Preference             `json:"preference"`
	Ambiguous           bool                   `json:"ambiguous"`
	LatencyBudget       time.Duration          `json:"latency_budget"`
	Payload             map[string]interface{} `json:"payload,omitempty"`
	ReceivedAt          time.Time              `json:"received_at"`
}

// HasHardBudget is false only for explicit rebuilds, where the member is waiting.
func (t Trigger) HasHardBudget() bool {
	return t.LatencyBudget > 0
}

func (t Trigger) Deadline() (time.Time, bool) {
	if !t.HasHardBudget() {
		return time.Time{}, false
	}
	return t.ReceivedAt.Add(t.LatencyBudget), true
}

func (t Trigger) IsExplicit() bool {
	return t.Source == SourceFullRebuild
}

// IsMemberSignal reports whether the trigger is a member's opinion rather than
// an observed fact about the world. Only member signals need corroboration.
func (t Trigger) IsMemberSignal() bool {
	return t.Source == SourceMoodSignal || t.Source == SourceUserText
}

// SignalKind groups comparable signals for corroboration.
func (t Trigger) SignalKind() string {
	return string(t.Source) + ":" + t.Category
}

// DelayMinutes reads the transit delay carried in the payload, if any.
func (t Trigger) DelayMinutes() int {
	switch v := t.Payload["delay_minutes"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
