package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/geo"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/pivot/trigger"
	"trip-pivot-be/pkg/provider/candidate"

	"github.com/google/uuid"
)

const module = "CascadeEvaluator"

type Kind string

const (
	ChangedSlotOnly    Kind = "changed_slot_only"
	SelectiveResolve   Kind = "selective_resolve"
	SuggestFullResolve Kind = "suggest_full_resolve"
)

type Origin string

const (
	OriginNone     Origin = ""
	OriginFallback Origin = "fallback"
	OriginSearch   Origin = "search"
)

// Proposal is one slot the evaluator would change and the activity it would
// change it to. Replacement is nil when nothing suitable was found.
type Proposal struct {
	SlotId             uuid.UUID
	ItineraryId        uuid.UUID
	ExpectedVersion    int64
	CurrentActivityRef string
	Shared             bool
	Replacement        *entity.Candidate
	Origin             Origin
	Dependency         DependencyKind
}

func (p Proposal) Resolved() bool {
	return p.Replacement != nil
}

// SwapResult is the transient outcome of one evaluation.
type SwapResult struct {
	Id             uuid.UUID
	TriggerId      uuid.UUID
	Kind           Kind
	Changed        Proposal
	Dependents     []Proposal
	DependentCount int
	Degraded       bool
}

// SlotIds lists the changed slot followed by every dependent carried in the result.
func (r *SwapResult) SlotIds() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Dependents)+1)
	ids = append(ids, r.Changed.SlotId)
	for _, d := range r.Dependents {
		ids = append(ids, d.SlotId)
	}
	return ids
}

// FallbackReader is the read path of the fallback store.
type FallbackReader interface {
	Get(ctx context.Context, slot *entity.Slot) *entity.FallbackEntry
}

type Config struct {
	Thresholds   Thresholds
	SelectiveMax int
	PreviewSize  int
	SearchRadius int
	SearchLimit  int
}

func DefaultConfig() Config {
	return Config{
		Thresholds:   DefaultThresholds(),
		SelectiveMax: 2,
		PreviewSize:  2,
		SearchRadius: 1500,
		SearchLimit:  6,
	}
}

type Evaluator struct {
	fallbacks FallbackReader
	search    candidate.Provider
	config    Config
	logger    logger.ILogger
}

func NewEvaluator(fallbacks FallbackReader, search candidate.Provider, config Config, log logger.ILogger) *Evaluator {
	return &Evaluator{
		fallbacks: fallbacks,
		search:    search,
		config:    config,
		logger:    log,
	}
}

// Evaluate finds the slots that must change together with the trigger's
// affected slot. The scan walks the rest of the day in order and stops at the
// first slot that does not depend on the change.
//
// A missing snapshot is a storage failure and the only error path besides an
// unknown slot. Running out of budget is not an error: the result is returned
// as changed_slot_only with Degraded set.
func (e *Evaluator) Evaluate(ctx context.Context, trig trigger.Trigger, snapshot *entity.ItinerarySnapshot) (*SwapResult, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: no snapshot for itinerary %s", perr.ErrStorageFailure, trig.ItineraryId)
	}
	affected := snapshot.Slot(trig.AffectedSlotId)
	if affected == nil {
		return nil, fmt.Errorf("slot %s in itinerary %s: %w", trig.AffectedSlotId, trig.ItineraryId, perr.ErrNotFound)
	}

	if deadline, ok := trig.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	result := &SwapResult{
		Id:        uuid.New(),
		TriggerId: trig.Id,
		Kind:      ChangedSlotOnly,
	}

	var degraded bool
	result.Changed, degraded = e.resolve(ctx, affected, trig.Preference, affected.Point(), DependencyNone)
	result.Degraded = degraded

	res := newResolver(e.config.Thresholds, change{
		affected:    affected,
		replacement: result.Changed.Replacement,
		startShift:  time.Duration(trig.DelayMinutes()) * time.Minute,
		dayEnergy:   snapshot.DayEnergy(affected.DayIndex),
	})

	type dependent struct {
		slot *entity.Slot
		kind DependencyKind
	}
	var dependents []dependent
	for _, next := range snapshot.After(affected) {
		if ctx.Err() != nil {
			e.logger.Warn(module, "Latency budget exhausted during cascade scan", map[string]interface{}{
				"trigger_id": trig.Id,
				"slot_id":    affected.Id,
				"scanned":    len(dependents),
			})
			result.Degraded = true
			return result, nil
		}
		kind := res.dependsOn(next)
		if kind == DependencyNone {
			break
		}
		dependents = append(dependents, dependent{slot: next, kind: kind})
	}

	result.DependentCount = len(dependents)
	switch {
	case len(dependents) == 0:
		return result, nil
	case len(dependents) <= e.config.SelectiveMax:
		result.Kind = SelectiveResolve
	default:
		result.Kind = SuggestFullResolve
		if !trig.IsExplicit() && len(dependents) > e.config.PreviewSize {
			dependents = dependents[:e.config.PreviewSize]
		}
	}

	near := affected.Point()
	if result.Changed.Replacement != nil {
		near = result.Changed.Replacement.Point()
	}
	for _, d := range dependents {
		proposal, late := e.resolve(ctx, d.slot, preferenceFor(d.kind), near, d.kind)
		if late {
			result.Degraded = true
		}
		result.Dependents = append(result.Dependents, proposal)
	}
	return result, nil
}

// resolve picks a replacement for slot. The precomputed entry is tried first;
// without one the candidate store is searched under the remaining budget.
// The bool reports whether the budget ran out on the way.
func (e *Evaluator) resolve(ctx context.Context, slot *entity.Slot, pref trigger.Preference, near geo.Point, kind DependencyKind) (Proposal, bool) {
	proposal := Proposal{
		SlotId:             slot.Id,
		ItineraryId:        slot.ItineraryId,
		ExpectedVersion:    slot.Version,
		CurrentActivityRef: slot.ActivityRef,
		Shared:             slot.IsShared,
		Dependency:         kind,
	}

	if entry := e.fallbacks.Get(ctx, slot); !entry.IsEmpty() {
		if pick := choose(entry, pref, slot, near); pick != nil {
			proposal.Replacement = pick
			proposal.Origin = OriginFallback
			return proposal, false
		}
	}

	if e.search == nil {
		return proposal, false
	}
	if ctx.Err() != nil {
		return proposal, true
	}

	results, err := e.search.Lookup(ctx, candidate.Query{
		Category:     slot.Category,
		Lat:          near.Lat,
		Lng:          near.Lng,
		RadiusMeters: e.config.SearchRadius,
		Exclude:      []string{slot.ActivityRef},
		Limit:        e.config.SearchLimit,
	})
	if err != nil {
		late := errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil
		e.logger.Warn(module, "On-demand candidate search failed", map[string]interface{}{
			"slot_id": slot.Id,
			"late":    late,
			"error":   perr.Upstream("candidate store", err).Error(),
		})
		return proposal, late
	}

	if pick := choose(entryFromSearch(slot, results), pref, slot, near); pick != nil {
		proposal.Replacement = pick
		proposal.Origin = OriginSearch
	}
	return proposal, false
}
