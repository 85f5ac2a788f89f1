package escalation

import (
	"context"
	"fmt"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/pivot/trigger"
)

const module = "EscalationCoordinator"

type Decision string

const (
	WatchOnly           Decision = "watch_only"
	AutoApplyIndividual Decision = "auto_apply_individual"
	ProposeToGroup      Decision = "propose_to_group"
	AutoApplyShared     Decision = "auto_apply_shared"
)

// AutoApplies reports whether the decision lets the mutation controller
// commit without waiting for anyone.
func (d Decision) AutoApplies() bool {
	return d == AutoApplyIndividual || d == AutoApplyShared
}

const (
	ReasonPersonalSlot      = "personal slot of originating member"
	ReasonForeignSlot       = "personal slot of another member"
	ReasonExplicitShared    = "explicit rebuild of shared slot needs group consent"
	ReasonObjectiveShared   = "observed condition on shared slot"
	ReasonFirstSignal       = "first signal in window"
	ReasonCorroborated      = "corroborated by distinct members"
	ReasonWindowUnavailable = "signal window unavailable"
)

type Routing struct {
	Decision        Decision
	DistinctMembers int
	Reason          string
}

type Coordinator struct {
	window Window
	logger logger.ILogger
}

func NewCoordinator(window Window, log logger.ILogger) *Coordinator {
	return &Coordinator{window: window, logger: log}
}

// Route decides who may act on the bounded change. A member signal on a
// shared slot is only surfaced to the group once a second distinct member
// reports the same kind of drift inside the window; it never auto-applies.
//
// An error is returned only when the window could not be written. The
// routing is still valid (watch_only) and the caller carries on.
func (c *Coordinator) Route(ctx context.Context, trig trigger.Trigger, slot *entity.Slot, bounded *guard.BoundedChange) (Routing, error) {
	if !slot.IsShared {
		if slot.IsPersonalTo(trig.OriginatingMemberId) || !trig.IsMemberSignal() && !trig.IsExplicit() {
			return Routing{Decision: AutoApplyIndividual, Reason: ReasonPersonalSlot}, nil
		}
		return Routing{Decision: WatchOnly, Reason: ReasonForeignSlot}, nil
	}

	if trig.IsExplicit() {
		return Routing{Decision: ProposeToGroup, Reason: ReasonExplicitShared}, nil
	}
	if !trig.IsMemberSignal() {
		return Routing{Decision: AutoApplyShared, Reason: ReasonObjectiveShared}, nil
	}

	obs, err := c.window.Record(ctx, Signal{
		ItineraryId: trig.ItineraryId,
		Kind:        trig.SignalKind(),
		MemberId:    trig.OriginatingMemberId,
		At:          trig.ReceivedAt,
	})
	if err != nil {
		return Routing{Decision: WatchOnly, Reason: ReasonWindowUnavailable}, perr.Upstream("signal window", err)
	}

	if obs.DistinctMembers < 2 {
		c.logger.Debug(module, "Signal recorded, waiting for corroboration", map[string]interface{}{
			"itinerary_id": trig.ItineraryId,
			"kind":         trig.SignalKind(),
			"member_id":    trig.OriginatingMemberId,
			"pending":      pendingCount(bounded),
		})
		return Routing{Decision: WatchOnly, DistinctMembers: obs.DistinctMembers, Reason: ReasonFirstSignal}, nil
	}

	if err := c.window.Clear(ctx, trig.ItineraryId, trig.SignalKind()); err != nil {
		c.logger.Warn(module, "Failed to clear signal window", map[string]interface{}{
			"itinerary_id": trig.ItineraryId,
			"kind":         trig.SignalKind(),
			"error":        err.Error(),
		})
	}
	return Routing{
		Decision:        ProposeToGroup,
		DistinctMembers: obs.DistinctMembers,
		Reason:          fmt.Sprintf("%s (%d, first %s)", ReasonCorroborated, obs.DistinctMembers, obs.First),
	}, nil
}

func pendingCount(bounded *guard.BoundedChange) int {
	if bounded == nil {
		return 0
	}
	return len(bounded.Apply)
}
