package trigger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawInput is whatever arrived at the edge: a status check, a weather delta,
// a mood button, free text (already run through the mood classifier), a
// transit delta or an explicit rebuild request.
type RawInput struct {
	Kind        string
	ItineraryId uuid.UUID
	SlotId      uuid.UUID
	MemberId    uuid.UUID
	Category    string
	Text        string
	Mood        *MoodResult
	Payload     map[string]interface{}
	ReceivedAt  time.Time
}

type MoodResult struct {
	Category   string
	Confidence float64
}

// Budgets maps each source to its real-time budget. Zero means no hard budget.
type Budgets struct {
	VenueClosed  time.Duration
	Weather      time.Duration
	MoodSignal   time.Duration
	TransitDelay time.Duration
	UserText     time.Duration
	Cascade      time.Duration
	Unrecognized time.Duration
}

func DefaultBudgets() Budgets {
	return Budgets{
		VenueClosed:  2 * time.Second,
		Weather:      2 * time.Second,
		MoodSignal:   3 * time.Second,
		TransitDelay: 5 * time.Second,
		UserText:     3 * time.Second,
		Cascade:      5 * time.Second,
		Unrecognized: 5 * time.Second,
	}
}

func (b Budgets) For(source Source) time.Duration {
	switch source {
	case SourceVenueClosed:
		return b.VenueClosed
	case SourceWeather:
		return b.Weather
	case SourceMoodSignal:
		return b.MoodSignal
	case SourceTransitDelay:
		return b.TransitDelay
	case SourceUserText:
		return b.UserText
	case SourceCascade:
		return b.Cascade
	case SourceFullRebuild:
		return 0
	}
	return b.Unrecognized
}

const (
	CategoryUnclassified = "unclassified"
	CategoryUnrecognized = "unrecognized"
)

var kindAliases = map[string]Source{
	"venue_closed":           SourceVenueClosed,
	"venue_status":           SourceVenueClosed,
	"weather":                SourceWeather,
	"weather_delta":          SourceWeather,
	"mood":                   SourceMoodSignal,
	"mood_signal":            SourceMoodSignal,
	"transit":                SourceTransitDelay,
	"transit_delay":          SourceTransitDelay,
	"text":                   SourceUserText,
	"user_text":              SourceUserText,
	"cascade":                SourceCascade,
	"rebuild":                SourceFullRebuild,
	"full_rebuild":           SourceFullRebuild,
	"full_rebuild_requested": SourceFullRebuild,
}

var lowEnergyMoods = map[string]bool{
	"tired":      true,
	"fatigue":    true,
	"fatigued":   true,
	"exhausted":  true,
	"low_energy": true,
	"sore":       true,
	"overheated": true,
}

var noveltyMoods = map[string]bool{
	"bored":        true,
	"restless":     true,
	"adventurous":  true,
	"want_change":  true,
	"underwhelmed": true,
}

type Classifier struct {
	budgets         Budgets
	confidenceFloor float64
}

func NewClassifier(budgets Budgets, confidenceFloor float64) *Classifier {
	return &Classifier{budgets: budgets, confidenceFloor: confidenceFloor}
}

// Classify is total: anything it does not recognise becomes a conservative
// user_text trigger with the largest finite budget.
func (c *Classifier) Classify(raw RawInput) Trigger {
	t := Trigger{
		Id:                  uuid.New(),
		ItineraryId:         raw.ItineraryId,
		AffectedSlotId:      raw.SlotId,
		OriginatingMemberId: raw.MemberId,
		Payload:             copyPayload(raw.Payload),
		ReceivedAt:          raw.ReceivedAt,
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = time.Now()
	}

	source, ok := kindAliases[normalize(raw.Kind)]
	if !ok {
		t.Source = SourceUserText
		t.Category = CategoryUnrecognized
		t.Preference = PreferLowEnergy
		t.Ambiguous = true
		t.LatencyBudget = c.budgets.Unrecognized
		return t
	}

	t.Source = source
	t.LatencyBudget = c.budgets.For(source)
	t.Confidence = 1

	switch source {
	case SourceVenueClosed:
		t.Category = "venue_closed"
		t.Preference = PreferAdjacent
	case SourceWeather:
		t.Category = firstNonEmpty(normalize(raw.Category), payloadString(raw.Payload, "condition"), "weather")
		t.Preference = PreferIndoor
	case SourceTransitDelay:
		t.Category = "transit_delay"
		t.Preference = PreferNearest
	case SourceCascade:
		t.Category = "cascade"
		t.Preference = PreferAdjacent
	case SourceFullRebuild:
		t.Category = "full_rebuild"
		t.Preference = PreferAdjacent
	case SourceMoodSignal:
		c.classifyMood(&t, normalize(raw.Category), raw.Mood)
	case SourceUserText:
		c.classifyText(&t, raw.Mood)
	}
	return t
}

func (c *Classifier) classifyMood(t *Trigger, category string, mood *MoodResult) {
	if category == "" && mood != nil {
		category = normalize(mood.Category)
		t.Confidence = mood.Confidence
	}
	if category == "" || t.Confidence < c.confidenceFloor {
		c.ambiguous(t)
		return
	}
	t.Category = category
	t.Preference = moodPreference(category)
}

// classifyText promotes confidently classified text to a mood signal.
func (c *Classifier) classifyText(t *Trigger, mood *MoodResult) {
	if mood == nil || normalize(mood.Category) == "" || mood.Confidence < c.confidenceFloor {
		c.ambiguous(t)
		if mood != nil {
			t.Confidence = mood.Confidence
		} else {
			t.Confidence = 0
		}
		return
	}
	t.Source = SourceMoodSignal
	t.LatencyBudget = c.budgets.For(SourceMoodSignal)
	t.Category = normalize(mood.Category)
	t.Confidence = mood.Confidence
	t.Preference = moodPreference(t.Category)
}

func (c *Classifier) ambiguous(t *Trigger) {
	t.Source = SourceUserText
	t.LatencyBudget = c.budgets.For(SourceUserText)
	t.Category = CategoryUnclassified
	t.Preference = PreferLowEnergy
	t.Ambiguous = true
}

func moodPreference(category string) Preference {
	switch {
	case lowEnergyMoods[category]:
		return PreferLowEnergy
	case noveltyMoods[category]:
		return PreferOpposite
	}
	return PreferAdjacent
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return normalize(v)
	}
	return ""
}

func copyPayload(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
