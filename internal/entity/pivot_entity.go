package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PivotStatus string

const (
	PivotStatusPending    PivotStatus = "pending"
	PivotStatusApplied    PivotStatus = "applied"
	PivotStatusDismissed  PivotStatus = "dismissed"
	PivotStatusWatching   PivotStatus = "watching"
	PivotStatusIgnored    PivotStatus = "ignored"
	PivotStatusUnchanged  PivotStatus = "unchanged"
	PivotStatusSuperseded PivotStatus = "superseded"
	PivotStatusFailed     PivotStatus = "failed"
)

// IsTerminal reports whether no member action can change the record any more.
func (s PivotStatus) IsTerminal() bool {
	return s != PivotStatusPending
}

// PivotRecord is the local working copy of one evaluated trigger, kept so a
// later member action can be matched to the decision it answers.
type PivotRecord struct {
	Id                  uuid.UUID
	ItineraryId         uuid.UUID
	AffectedSlotId      uuid.UUID
	OriginatingMemberId uuid.UUID
	Source              string
	Result              string
	RoutingDecision     string
	Status              PivotStatus
	Degraded            bool
	Trigger             json.RawMessage
	Change              json.RawMessage
	CreatedAt           time.Time
	ResolvedAt          *time.Time
}
