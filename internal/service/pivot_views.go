package service

import (
	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/entity"
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/escalation"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/trigger"

	"github.com/google/uuid"
)

func toEvaluateResponse(
	pivotId uuid.UUID,
	trig trigger.Trigger,
	bounded *guard.BoundedChange,
	routing escalation.Routing,
	status entity.PivotStatus,
	applied []*entity.Slot,
) *dto.EvaluateResponse {
	return &dto.EvaluateResponse{
		PivotId:         pivotId,
		TriggerId:       trig.Id,
		Source:          string(trig.Source),
		Category:        trig.Category,
		Result:          string(bounded.Kind),
		RoutingDecision: string(routing.Decision),
		Status:          string(status),
		BoundedChange:   toBoundedChangeResponse(bounded),
		Applied:         toSlotResponses(applied),
	}
}

func toBoundedChangeResponse(b *guard.BoundedChange) *dto.BoundedChangeResponse {
	if b == nil {
		return nil
	}
	return &dto.BoundedChangeResponse{
		SwapId:      b.SwapId,
		Kind:        string(b.Kind),
		Depth:       b.Depth,
		Apply:       toProposalResponses(b.Apply),
		Suggestions: toProposalResponses(b.Suggestions),
		Unresolved:  toProposalResponses(b.Unresolved),
		Degraded:    b.Degraded,
	}
}

func toProposalResponses(proposals []cascade.Proposal) []dto.ProposalResponse {
	res := make([]dto.ProposalResponse, 0, len(proposals))
	for _, p := range proposals {
		pr := dto.ProposalResponse{
			SlotId:             p.SlotId,
			ExpectedVersion:    p.ExpectedVersion,
			CurrentActivityRef: p.CurrentActivityRef,
			Origin:             string(p.Origin),
			Dependency:         string(p.Dependency),
		}
		if p.Replacement != nil {
			c := toCandidateResponse(*p.Replacement)
			pr.Replacement = &c
		}
		res = append(res, pr)
	}
	return res
}

func toCandidateResponse(c entity.Candidate) dto.CandidateResponse {
	return dto.CandidateResponse{
		ActivityRef: c.ActivityRef,
		Name:        c.Name,
		Category:    c.Category,
		Vibe:        c.Vibe,
		Indoor:      c.Indoor,
		Lat:         c.Lat,
		Lng:         c.Lng,
		EnergyCost:  c.EnergyCost,
	}
}

func toCandidateResponses(candidates []entity.Candidate) []dto.CandidateResponse {
	res := make([]dto.CandidateResponse, 0, len(candidates))
	for _, c := range candidates {
		res = append(res, toCandidateResponse(c))
	}
	return res
}

func toSlotResponse(s *entity.Slot) dto.SlotResponse {
	return dto.SlotResponse{
		Id:            s.Id,
		ItineraryId:   s.ItineraryId,
		DayIndex:      s.DayIndex,
		SequenceIndex: s.SequenceIndex,
		ActivityRef:   s.ActivityRef,
		ActivityName:  s.ActivityName,
		Category:      s.Category,
		Vibe:          s.Vibe,
		Outdoor:       s.Outdoor,
		Lat:           s.Lat,
		Lng:           s.Lng,
		StartAt:       s.StartAt,
		EndAt:         s.EndAt,
		EnergyCost:    s.EnergyCost,
		IsShared:      s.IsShared,
		OwnerMemberId: s.OwnerMemberId,
		Version:       s.Version,
	}
}

func toSlotResponses(slots []*entity.Slot) []dto.SlotResponse {
	res := make([]dto.SlotResponse, 0, len(slots))
	for _, s := range slots {
		res = append(res, toSlotResponse(s))
	}
	return res
}
