package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/pkg/metrics"
	"trip-pivot-be/internal/repository/unitofwork"
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/escalation"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/mutation"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/pivot/recorder"
	"trip-pivot-be/pkg/pivot/trigger"
	"trip-pivot-be/pkg/provider/mood"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidAction      = fmt.Errorf("%w: unknown member action", perr.ErrInvalidInput)
	ErrUnknownSuggestion  = fmt.Errorf("%w: slot is not a suggestion of this pivot", perr.ErrInvalidInput)
	ErrUnknownAlternative = fmt.Errorf("%w: activity is not an alternative for this slot", perr.ErrInvalidInput)
	ErrRequesterConsent   = fmt.Errorf("%w: a group proposal needs another member's okay", perr.ErrInvalidInput)
)

// NoBetterFit is what members see when nothing could be swapped in.
const NoBetterFit = "couldn't find a better fit right now"

var tracer = otel.Tracer("trip-pivot-be/internal/service")

// EventRecorder takes pivot events off the request path.
type EventRecorder interface {
	Record(event recorder.PivotEvent)
}

type Notifier interface {
	Notify(ctx context.Context, n PivotNotification)
}

type IPivotService interface {
	// Evaluate classifies a member's raw input and runs it through the pipeline.
	Evaluate(ctx context.Context, memberId uuid.UUID, req *dto.EvaluateRequest) (*dto.EvaluateResponse, error)
	// Ingest runs an already collected raw input, e.g. from the status poller.
	Ingest(ctx context.Context, raw trigger.RawInput) (*dto.EvaluateResponse, error)
	Act(ctx context.Context, memberId, pivotId uuid.UUID, req *dto.ActionRequest) (*dto.ActionResponse, error)
	ListPivots(ctx context.Context, itineraryId uuid.UUID, limit int) ([]*dto.PivotSummaryResponse, error)
	// SweepIgnored closes proposals nobody answered within olderThan.
	SweepIgnored(ctx context.Context, olderThan time.Duration) (int, error)
}

type PivotOptions struct {
	// ConflictReevaluation bounds how often a stale write is re-evaluated.
	ConflictReevaluation int
	MoodTimeout          time.Duration
	AlternativesTimeout  time.Duration
	SweepBatch           int
}

type PivotServiceDeps struct {
	UowFactory  unitofwork.RepositoryFactory
	Classifier  *trigger.Classifier
	Mood        mood.Classifier
	Evaluator   *cascade.Evaluator
	Guard       *guard.Guard
	Coordinator *escalation.Coordinator
	Fallbacks   IFallbackService
	Store       FallbackStore
	Recorder    EventRecorder
	Notifier    Notifier
	Options     PivotOptions
	Logger      logger.ILogger
}

type pivotService struct {
	PivotServiceDeps
}

func NewPivotService(deps PivotServiceDeps) IPivotService {
	if deps.Options.SweepBatch <= 0 {
		deps.Options.SweepBatch = 100
	}
	return &pivotService{PivotServiceDeps: deps}
}

func (s *pivotService) Evaluate(ctx context.Context, memberId uuid.UUID, req *dto.EvaluateRequest) (*dto.EvaluateResponse, error) {
	raw := trigger.RawInput{
		Kind:        req.Kind,
		ItineraryId: req.ItineraryId,
		SlotId:      req.SlotId,
		MemberId:    memberId,
		Category:    req.Category,
		Text:        req.Text,
		Payload:     req.Payload,
		ReceivedAt:  time.Now(),
	}

	switch {
	case req.Category != "" && req.Confidence != nil:
		raw.Mood = &trigger.MoodResult{Category: req.Category, Confidence: *req.Confidence}
		raw.Category = ""
	case req.Category == "" && req.Text != "":
		raw.Mood = s.classifyText(ctx, req.Text)
	}

	return s.Ingest(ctx, raw)
}

// classifyText asks the mood classifier within its own timeout. Any failure
// leaves the text unclassified, which the classifier turns into the safe
// low-energy default.
func (s *pivotService) classifyText(ctx context.Context, text string) *trigger.MoodResult {
	if s.Mood == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.Options.MoodTimeout)
	defer cancel()

	res, err := s.Mood.Classify(ctx, text)
	if err != nil {
		s.Logger.Warn("PivotService", "Mood classification unavailable", map[string]interface{}{
			"error": perr.Upstream("mood classifier", err).Error(),
		})
		return nil
	}
	return &trigger.MoodResult{Category: res.Category, Confidence: res.Confidence}
}

func (s *pivotService) Ingest(ctx context.Context, raw trigger.RawInput) (*dto.EvaluateResponse, error) {
	trig := s.Classifier.Classify(raw)

	ctx, span := tracer.Start(ctx, "pivot.ingest", trace.WithAttributes(
		attribute.String("pivot.trigger_id", trig.Id.String()),
		attribute.String("pivot.source", string(trig.Source)),
		attribute.String("pivot.itinerary_id", trig.ItineraryId.String()),
	))
	defer span.End()

	timer := time.Now()
	res, err := s.run(ctx, trig)
	metrics.EvaluationDuration.WithLabelValues(string(trig.Source)).Observe(time.Since(timer).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("pivot.result", res.Result),
		attribute.String("pivot.routing", res.RoutingDecision),
		attribute.Bool("pivot.degraded", res.Degraded),
	)
	return res, nil
}

func (s *pivotService) run(ctx context.Context, trig trigger.Trigger) (*dto.EvaluateResponse, error) {
	pivotId := uuid.New()

	bounded, snapshot, err := s.evaluate(ctx, trig)
	if err != nil {
		metrics.TriggersTotal.WithLabelValues(string(trig.Source), "failed").Inc()
		s.Recorder.Record(recorder.NewEvent(recorder.Outcome{PivotId: pivotId, Trigger: trig, Err: err}, time.Now()))
		return nil, err
	}
	slot := snapshot.Slot(trig.AffectedSlotId)

	routing, err := s.Coordinator.Route(ctx, trig, slot, bounded)
	if err != nil {
		s.Logger.Warn("PivotService", "Routing degraded to watch only", map[string]interface{}{
			"trigger_id": trig.Id,
			"error":      err.Error(),
		})
	}
	metrics.RoutingTotal.WithLabelValues(string(routing.Decision)).Inc()

	var applied []*entity.Slot
	var applyErr error
	if routing.Decision.AutoApplies() && !bounded.IsEmpty() {
		applied, bounded, _, applyErr = s.applyBounded(ctx, trig, bounded, nil, true)
	}

	status := statusFor(routing.Decision, bounded, applied)
	if applyErr != nil {
		status = entity.PivotStatusFailed
		s.Logger.Error("PivotService", "Auto-apply failed", map[string]interface{}{
			"trigger_id": trig.Id,
			"error":      applyErr.Error(),
		})
	}

	event := recorder.NewEvent(recorder.Outcome{
		PivotId: pivotId,
		Trigger: trig,
		Bounded: bounded,
		Routing: &routing,
		Applied: slotIds(applied),
		Err:     applyErr,
	}, time.Now())

	metrics.TriggersTotal.WithLabelValues(string(trig.Source), string(bounded.Kind)).Inc()
	if event.Degraded {
		metrics.BudgetMissesTotal.WithLabelValues(string(trig.Source)).Inc()
	}

	s.saveRecord(ctx, pivotId, trig, bounded, routing, status, event.Degraded)
	s.afterCommit(ctx, applied)
	s.notifyEvaluation(ctx, pivotId, trig, slot, bounded, routing, status, applied)
	s.Recorder.Record(event)

	res := toEvaluateResponse(pivotId, trig, bounded, routing, status, applied)
	res.Degraded = event.Degraded
	if status == entity.PivotStatusUnchanged || status == entity.PivotStatusFailed {
		res.Message = NoBetterFit
	}
	return res, nil
}

// evaluate runs the read-only stages on a fresh snapshot.
func (s *pivotService) evaluate(ctx context.Context, trig trigger.Trigger) (*guard.BoundedChange, *entity.ItinerarySnapshot, error) {
	ctx, span := tracer.Start(ctx, "pivot.evaluate")
	defer span.End()

	snapshot, err := s.loadSnapshot(ctx, trig.ItineraryId)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Evaluator.Evaluate(ctx, trig, snapshot)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(
		attribute.String("pivot.swap_kind", string(result.Kind)),
		attribute.Int("pivot.dependents", result.DependentCount),
	)
	return s.Guard.Bound(result, trig), snapshot, nil
}

func (s *pivotService) loadSnapshot(ctx context.Context, itineraryId uuid.UUID) (*entity.ItinerarySnapshot, error) {
	uow := s.UowFactory.NewUnitOfWork(ctx)
	slots, err := uow.SlotRepository().FindByItinerary(ctx, itineraryId)
	if err != nil {
		return nil, perr.Storage(err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("itinerary %s: %w", itineraryId, perr.ErrNotFound)
	}
	return entity.NewItinerarySnapshot(itineraryId, slots, time.Now()), nil
}

// applyBounded commits the bounded change (when includeApply) plus any opted-in
// suggestions. A version conflict is answered by re-evaluating trig against
// fresh state, never by overwriting.
func (s *pivotService) applyBounded(
	ctx context.Context,
	trig trigger.Trigger,
	bounded *guard.BoundedChange,
	optIn []uuid.UUID,
	includeApply bool,
) ([]*entity.Slot, *guard.BoundedChange, bool, error) {
	ctx, span := tracer.Start(ctx, "pivot.apply")
	defer span.End()

	reevaluated := false
	for attempt := 0; ; attempt++ {
		changes := changesFor(bounded, optIn, includeApply)
		if len(changes) == 0 {
			return nil, bounded, reevaluated, nil
		}

		applied, err := s.commit(ctx, changes)
		if err == nil {
			span.SetAttributes(attribute.Int("pivot.applied", len(applied)), attribute.Int("pivot.attempts", attempt+1))
			return applied, bounded, reevaluated, nil
		}
		if !errors.Is(err, perr.ErrVersionConflict) || attempt >= s.Options.ConflictReevaluation {
			span.RecordError(err)
			return nil, bounded, reevaluated, err
		}

		s.Logger.Info("PivotService", "Re-evaluating after version conflict", map[string]interface{}{
			"trigger_id": trig.Id,
			"attempt":    attempt + 1,
		})
		next, _, evalErr := s.evaluate(ctx, trig)
		if evalErr != nil {
			return nil, bounded, reevaluated, evalErr
		}
		bounded = next
		reevaluated = true
	}
}

func (s *pivotService) commit(ctx context.Context, changes []entity.SlotChange) ([]*entity.Slot, error) {
	uow := s.UowFactory.NewUnitOfWork(ctx)
	return mutation.NewController(uow.SlotRepository(), s.Logger).ApplyAll(ctx, changes)
}

// changesFor lists each slot at most once, whatever the opt-in repeats.
func changesFor(bounded *guard.BoundedChange, optIn []uuid.UUID, includeApply bool) []entity.SlotChange {
	var proposals []cascade.Proposal
	seen := make(map[uuid.UUID]bool)
	add := func(p cascade.Proposal) {
		if seen[p.SlotId] {
			return
		}
		seen[p.SlotId] = true
		proposals = append(proposals, p)
	}

	if includeApply {
		for _, p := range bounded.Apply {
			add(p)
		}
	}
	for _, id := range optIn {
		if p, ok := bounded.FindSuggestion(id); ok {
			add(p)
		}
	}
	return mutation.Changes(proposals)
}

func statusFor(decision escalation.Decision, bounded *guard.BoundedChange, applied []*entity.Slot) entity.PivotStatus {
	open := len(bounded.Suggestions) > 0
	switch {
	case decision == escalation.WatchOnly:
		return entity.PivotStatusWatching
	case decision == escalation.ProposeToGroup:
		if bounded.IsEmpty() && !open {
			return entity.PivotStatusUnchanged
		}
		return entity.PivotStatusPending
	case open:
		// applied or not, members can still opt into the suggestions
		return entity.PivotStatusPending
	case len(applied) > 0:
		return entity.PivotStatusApplied
	}
	return entity.PivotStatusUnchanged
}

func (s *pivotService) saveRecord(
	ctx context.Context,
	pivotId uuid.UUID,
	trig trigger.Trigger,
	bounded *guard.BoundedChange,
	routing escalation.Routing,
	status entity.PivotStatus,
	degraded bool,
) {
	trigJSON, _ := json.Marshal(trig)
	changeJSON, _ := json.Marshal(bounded)

	record := &entity.PivotRecord{
		Id:                  pivotId,
		ItineraryId:         trig.ItineraryId,
		AffectedSlotId:      trig.AffectedSlotId,
		OriginatingMemberId: trig.OriginatingMemberId,
		Source:              string(trig.Source),
		Result:              string(bounded.Kind),
		RoutingDecision:     string(routing.Decision),
		Status:              status,
		Degraded:            degraded,
		Trigger:             trigJSON,
		Change:              changeJSON,
		CreatedAt:           time.Now(),
	}
	if status != entity.PivotStatusPending && status != entity.PivotStatusWatching {
		resolved := record.CreatedAt
		record.ResolvedAt = &resolved
	}

	uow := s.UowFactory.NewUnitOfWork(ctx)
	if err := uow.PivotRepository().Create(ctx, record); err != nil {
		s.Logger.Error("PivotService", "Failed to save pivot record", map[string]interface{}{
			"pivot_id": pivotId,
			"error":    err.Error(),
		})
	}
}

// afterCommit refreshes the fallbacks of slots whose activity just changed.
func (s *pivotService) afterCommit(ctx context.Context, applied []*entity.Slot) {
	for _, slot := range applied {
		s.Fallbacks.SlotChanged(ctx, slot)
	}
}

func (s *pivotService) notifyEvaluation(
	ctx context.Context,
	pivotId uuid.UUID,
	trig trigger.Trigger,
	slot *entity.Slot,
	bounded *guard.BoundedChange,
	routing escalation.Routing,
	status entity.PivotStatus,
	applied []*entity.Slot,
) {
	n := PivotNotification{
		PivotId:     pivotId,
		ItineraryId: trig.ItineraryId,
		SlotId:      trig.AffectedSlotId,
		Decision:    string(routing.Decision),
		Data:        toBoundedChangeResponse(bounded),
	}

	switch routing.Decision {
	case escalation.ProposeToGroup:
		if status != entity.PivotStatusPending {
			return
		}
		n.Kind = NotificationProposed
		n.Message = "A change to the plan needs the group's okay"
	case escalation.AutoApplyShared:
		if len(applied) == 0 {
			return
		}
		n.Kind = NotificationApplied
		n.Message = fmt.Sprintf("Plan updated: %s", describe(trig))
	case escalation.AutoApplyIndividual:
		if len(applied) == 0 && status != entity.PivotStatusPending {
			return
		}
		n.Kind = NotificationApplied
		if len(applied) == 0 {
			n.Kind = NotificationProposed
		}
		n.Message = fmt.Sprintf("Your plan: %s", describe(trig))
		if recipient := recipientOf(trig, slot); recipient != uuid.Nil {
			n.MemberIds = []uuid.UUID{recipient}
		}
	default:
		return
	}
	s.Notifier.Notify(ctx, n)
}

func describe(trig trigger.Trigger) string {
	switch trig.Source {
	case trigger.SourceVenueClosed:
		return "a venue closed"
	case trigger.SourceWeather:
		return "the weather changed"
	case trigger.SourceTransitDelay:
		return "transit is running late"
	case trigger.SourceFullRebuild:
		return "rebuilt on request"
	}
	return "adjusted to how you feel"
}

func recipientOf(trig trigger.Trigger, slot *entity.Slot) uuid.UUID {
	if trig.OriginatingMemberId != uuid.Nil {
		return trig.OriginatingMemberId
	}
	if slot != nil && slot.OwnerMemberId != nil {
		return *slot.OwnerMemberId
	}
	return uuid.Nil
}

func (s *pivotService) Act(ctx context.Context, memberId, pivotId uuid.UUID, req *dto.ActionRequest) (*dto.ActionResponse, error) {
	action := recorder.MemberAction(req.Action)
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}

	ctx, span := tracer.Start(ctx, "pivot.act", trace.WithAttributes(
		attribute.String("pivot.id", pivotId.String()),
		attribute.String("pivot.action", req.Action),
	))
	defer span.End()

	uow := s.UowFactory.NewUnitOfWork(ctx)
	record, err := uow.PivotRepository().FindById(ctx, pivotId)
	if err != nil {
		return nil, perr.Storage(err)
	}
	if record == nil {
		return nil, fmt.Errorf("pivot %s: %w", pivotId, perr.ErrNotFound)
	}

	var trig trigger.Trigger
	var bounded guard.BoundedChange
	if err := decodeRecord(record, &trig, &bounded); err != nil {
		return nil, perr.Storage(err)
	}

	if needsOtherMember(record, trig, memberId, action) {
		return nil, ErrRequesterConsent
	}

	acted := &actionContext{
		record:   record,
		trig:     trig,
		bounded:  &bounded,
		memberId: memberId,
		action:   action,
		actedAt:  time.Now(),
	}

	var res *dto.ActionResponse
	switch action {
	case recorder.ActionExpandedAlts:
		res, err = s.expandAlternatives(ctx, acted)
	case recorder.ActionDismissed, recorder.ActionIgnored:
		res, err = s.close(ctx, acted)
	case recorder.ActionAccepted:
		res, err = s.accept(ctx, acted, req.OptInSlotIds)
	case recorder.ActionSelectedAlt:
		res, err = s.selectAlternative(ctx, acted, req.ActivityRef)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// needsOtherMember holds group proposals to the group: the member whose
// trigger raised one may withdraw it but not approve it.
func needsOtherMember(record *entity.PivotRecord, trig trigger.Trigger, memberId uuid.UUID, action recorder.MemberAction) bool {
	if record.RoutingDecision != string(escalation.ProposeToGroup) {
		return false
	}
	if action != recorder.ActionAccepted && action != recorder.ActionSelectedAlt {
		return false
	}
	return trig.OriginatingMemberId != uuid.Nil && trig.OriginatingMemberId == memberId
}

type actionContext struct {
	record   *entity.PivotRecord
	trig     trigger.Trigger
	bounded  *guard.BoundedChange
	memberId uuid.UUID
	action   recorder.MemberAction
	actedAt  time.Time
}

func (a *actionContext) outcome(applied []*entity.Slot, err error) recorder.Outcome {
	routing := escalation.Routing{Decision: escalation.Decision(a.record.RoutingDecision)}
	member := a.memberId
	return recorder.Outcome{
		PivotId:        a.record.Id,
		Trigger:        a.trig,
		Bounded:        a.bounded,
		Routing:        &routing,
		Applied:        slotIds(applied),
		Action:         a.action,
		ActingMemberId: &member,
		ActedAt:        a.actedAt,
		Err:            err,
	}
}

func (s *pivotService) expandAlternatives(ctx context.Context, a *actionContext) (*dto.ActionResponse, error) {
	uow := s.UowFactory.NewUnitOfWork(ctx)
	slot, err := uow.SlotRepository().FindById(ctx, a.trig.ItineraryId, a.trig.AffectedSlotId)
	if err != nil {
		return nil, perr.Storage(err)
	}
	if slot == nil {
		return nil, fmt.Errorf("slot %s: %w", a.trig.AffectedSlotId, perr.ErrNotFound)
	}

	entry := s.Store.Get(ctx, slot)
	if entry == nil {
		rctx, cancel := context.WithTimeout(ctx, s.Options.AlternativesTimeout)
		entry, err = s.Store.Rebuild(rctx, slot)
		cancel()
		if err != nil {
			s.Logger.Warn("PivotService", "No alternatives available", map[string]interface{}{
				"slot_id": slot.Id,
				"error":   err.Error(),
			})
		}
	}

	s.Recorder.Record(recorder.NewEvent(a.outcome(nil, nil), time.Now()))

	res := &dto.ActionResponse{
		PivotId:      a.record.Id,
		Action:       string(a.action),
		Status:       string(a.record.Status),
		Applied:      []dto.SlotResponse{},
		Alternatives: toCandidateResponses(entry.Alternatives()),
	}
	if len(res.Alternatives) == 0 {
		res.Message = NoBetterFit
	}
	return res, nil
}

func (s *pivotService) close(ctx context.Context, a *actionContext) (*dto.ActionResponse, error) {
	status := entity.PivotStatusDismissed
	if a.action == recorder.ActionIgnored {
		status = entity.PivotStatusIgnored
	}

	uow := s.UowFactory.NewUnitOfWork(ctx)
	if err := uow.PivotRepository().UpdateStatus(ctx, a.record.Id, entity.PivotStatusPending, status, a.actedAt); err != nil {
		return nil, err
	}
	s.Recorder.Record(recorder.NewEvent(a.outcome(nil, nil), time.Now()))

	if a.record.RoutingDecision == string(escalation.ProposeToGroup) {
		s.Notifier.Notify(ctx, PivotNotification{
			Kind:        NotificationResolved,
			PivotId:     a.record.Id,
			ItineraryId: a.trig.ItineraryId,
			SlotId:      a.trig.AffectedSlotId,
			Decision:    a.record.RoutingDecision,
			Message:     "The proposed change was dismissed",
		})
	}

	return &dto.ActionResponse{
		PivotId: a.record.Id,
		Action:  string(a.action),
		Status:  string(status),
		Applied: []dto.SlotResponse{},
	}, nil
}

func (s *pivotService) accept(ctx context.Context, a *actionContext, optIn []uuid.UUID) (*dto.ActionResponse, error) {
	for _, id := range optIn {
		if _, ok := a.bounded.FindSuggestion(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSuggestion, id)
		}
	}

	// Claiming the record first makes concurrent accepts race on the status,
	// so only one of them reaches the slots.
	uow := s.UowFactory.NewUnitOfWork(ctx)
	if err := uow.PivotRepository().UpdateStatus(ctx, a.record.Id, entity.PivotStatusPending, entity.PivotStatusApplied, a.actedAt); err != nil {
		return nil, err
	}

	// Consent was given now, so a re-evaluation gets a fresh budget.
	fresh := a.trig
	fresh.ReceivedAt = a.actedAt

	var applied []*entity.Slot
	var reevaluated bool
	var err error
	if escalation.Decision(a.record.RoutingDecision).AutoApplies() {
		// the change itself is already committed; only opt-ins remain
		applied, a.bounded, reevaluated, err = s.applyBounded(ctx, fresh, a.bounded, optIn, false)
	} else {
		// The group agreed to exactly these replacements. If the slots
		// moved on, the fresh result goes back to the group instead.
		if changes := changesFor(a.bounded, optIn, true); len(changes) > 0 {
			applied, err = s.commit(ctx, changes)
		}
		if errors.Is(err, perr.ErrVersionConflict) {
			return s.repropose(ctx, a, fresh, err)
		}
	}
	if err != nil {
		s.markUnapplied(ctx, a.record.Id, err)
		s.Recorder.Record(recorder.NewEvent(a.outcome(nil, err), time.Now()))
		return nil, err
	}

	s.afterCommit(ctx, applied)
	s.Recorder.Record(recorder.NewEvent(a.outcome(applied, nil), time.Now()))
	s.notifyApplied(ctx, a, applied)

	res := &dto.ActionResponse{
		PivotId:     a.record.Id,
		Action:      string(a.action),
		Status:      string(entity.PivotStatusApplied),
		Applied:     toSlotResponses(applied),
		Reevaluated: reevaluated,
	}
	if len(applied) == 0 {
		res.Message = NoBetterFit
	}
	return res, nil
}

// repropose supersedes a group proposal whose slots changed before it was
// accepted, and sends the re-evaluated change to the group as a new one.
func (s *pivotService) repropose(ctx context.Context, a *actionContext, fresh trigger.Trigger, conflict error) (*dto.ActionResponse, error) {
	s.markUnapplied(ctx, a.record.Id, conflict)
	s.Recorder.Record(recorder.NewEvent(a.outcome(nil, conflict), time.Now()))
	s.Logger.Info("PivotService", "Proposal superseded, re-proposing to group", map[string]interface{}{
		"pivot_id":   a.record.Id,
		"trigger_id": fresh.Id,
	})

	bounded, snapshot, err := s.evaluate(ctx, fresh)
	if err != nil {
		return nil, err
	}

	pivotId := uuid.New()
	routing := escalation.Routing{Decision: escalation.ProposeToGroup}
	status := statusFor(routing.Decision, bounded, nil)
	event := recorder.NewEvent(recorder.Outcome{
		PivotId: pivotId,
		Trigger: fresh,
		Bounded: bounded,
		Routing: &routing,
	}, time.Now())

	s.saveRecord(ctx, pivotId, fresh, bounded, routing, status, event.Degraded)
	s.notifyEvaluation(ctx, pivotId, fresh, snapshot.Slot(fresh.AffectedSlotId), bounded, routing, status, nil)
	s.Recorder.Record(event)

	res := &dto.ActionResponse{
		PivotId:     a.record.Id,
		Action:      string(a.action),
		Status:      string(entity.PivotStatusSuperseded),
		Applied:     []dto.SlotResponse{},
		Reevaluated: true,
		Message:     "The plan changed before this was accepted; the group has a new proposal",
	}
	if status == entity.PivotStatusPending {
		res.ProposalId = &pivotId
	} else {
		res.Message = NoBetterFit
	}
	return res, nil
}

func (s *pivotService) selectAlternative(ctx context.Context, a *actionContext, activityRef string) (*dto.ActionResponse, error) {
	uow := s.UowFactory.NewUnitOfWork(ctx)
	slot, err := uow.SlotRepository().FindById(ctx, a.trig.ItineraryId, a.trig.AffectedSlotId)
	if err != nil {
		return nil, perr.Storage(err)
	}
	if slot == nil {
		return nil, fmt.Errorf("slot %s: %w", a.trig.AffectedSlotId, perr.ErrNotFound)
	}

	choice := s.Store.Get(ctx, slot).Find(activityRef)
	expected := slot.Version
	for _, p := range a.bounded.Proposals() {
		if p.SlotId != slot.Id {
			continue
		}
		if !escalation.Decision(a.record.RoutingDecision).AutoApplies() {
			expected = p.ExpectedVersion
		}
		if choice == nil && p.Replacement != nil && p.Replacement.ActivityRef == activityRef {
			c := *p.Replacement
			choice = &c
		}
	}
	if choice == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlternative, activityRef)
	}

	if err := uow.PivotRepository().UpdateStatus(ctx, a.record.Id, entity.PivotStatusPending, entity.PivotStatusApplied, a.actedAt); err != nil {
		return nil, err
	}

	updated, err := mutation.NewController(uow.SlotRepository(), s.Logger).Apply(ctx, slot.ItineraryId, slot.Id, expected, *choice)
	if err != nil {
		s.markUnapplied(ctx, a.record.Id, err)
		s.Recorder.Record(recorder.NewEvent(a.outcome(nil, err), time.Now()))
		return nil, err
	}

	applied := []*entity.Slot{updated}
	s.afterCommit(ctx, applied)
	s.Recorder.Record(recorder.NewEvent(a.outcome(applied, nil), time.Now()))
	s.notifyApplied(ctx, a, applied)

	return &dto.ActionResponse{
		PivotId: a.record.Id,
		Action:  string(a.action),
		Status:  string(entity.PivotStatusApplied),
		Applied: toSlotResponses(applied),
	}, nil
}

// markUnapplied moves a claimed record off applied after its write failed.
func (s *pivotService) markUnapplied(ctx context.Context, pivotId uuid.UUID, cause error) {
	status := entity.PivotStatusFailed
	if errors.Is(cause, perr.ErrVersionConflict) {
		status = entity.PivotStatusSuperseded
	}
	uow := s.UowFactory.NewUnitOfWork(ctx)
	if err := uow.PivotRepository().UpdateStatus(ctx, pivotId, entity.PivotStatusApplied, status, time.Now()); err != nil {
		s.Logger.Error("PivotService", "Failed to release pivot", map[string]interface{}{
			"pivot_id": pivotId,
			"error":    err.Error(),
		})
	}
}

func (s *pivotService) notifyApplied(ctx context.Context, a *actionContext, applied []*entity.Slot) {
	if len(applied) == 0 {
		return
	}
	n := PivotNotification{
		Kind:        NotificationApplied,
		PivotId:     a.record.Id,
		ItineraryId: a.trig.ItineraryId,
		SlotId:      a.trig.AffectedSlotId,
		Decision:    a.record.RoutingDecision,
		Message:     "The plan was updated",
		Data:        toSlotResponses(applied),
	}
	if a.record.RoutingDecision == string(escalation.AutoApplyIndividual) {
		n.MemberIds = []uuid.UUID{a.memberId}
	}
	s.Notifier.Notify(ctx, n)
}

func (s *pivotService) ListPivots(ctx context.Context, itineraryId uuid.UUID, limit int) ([]*dto.PivotSummaryResponse, error) {
	uow := s.UowFactory.NewUnitOfWork(ctx)
	records, err := uow.PivotRepository().FindByItinerary(ctx, itineraryId, limit)
	if err != nil {
		return nil, perr.Storage(err)
	}

	res := make([]*dto.PivotSummaryResponse, 0, len(records))
	for _, r := range records {
		res = append(res, &dto.PivotSummaryResponse{
			Id:              r.Id,
			AffectedSlotId:  r.AffectedSlotId,
			Source:          r.Source,
			Result:          r.Result,
			RoutingDecision: r.RoutingDecision,
			Status:          string(r.Status),
			Degraded:        r.Degraded,
			CreatedAt:       r.CreatedAt,
			ResolvedAt:      r.ResolvedAt,
		})
	}
	return res, nil
}

func (s *pivotService) SweepIgnored(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now()
	uow := s.UowFactory.NewUnitOfWork(ctx)

	records, err := uow.PivotRepository().FindByStatusBefore(ctx, entity.PivotStatusPending, now.Add(-olderThan), s.Options.SweepBatch)
	if err != nil {
		return 0, perr.Storage(err)
	}

	swept := 0
	for _, record := range records {
		err := uow.PivotRepository().UpdateStatus(ctx, record.Id, entity.PivotStatusPending, entity.PivotStatusIgnored, now)
		if errors.Is(err, perr.ErrAlreadyResolved) {
			continue
		}
		if err != nil {
			s.Logger.Warn("PivotService", "Failed to close unanswered pivot", map[string]interface{}{
				"pivot_id": record.Id,
				"error":    err.Error(),
			})
			continue
		}

		swept++

		var trig trigger.Trigger
		var bounded guard.BoundedChange
		if err := decodeRecord(record, &trig, &bounded); err != nil {
			s.Logger.Error("PivotService", "Closed pivot has an unreadable body, not recorded", map[string]interface{}{
				"pivot_id": record.Id,
				"error":    err.Error(),
			})
			continue
		}
		routing := escalation.Routing{Decision: escalation.Decision(record.RoutingDecision)}
		s.Recorder.Record(recorder.NewEvent(recorder.Outcome{
			PivotId: record.Id,
			Trigger: trig,
			Bounded: &bounded,
			Routing: &routing,
			Action:  recorder.ActionIgnored,
			ActedAt: now,
		}, now))
	}

	if swept > 0 {
		s.Logger.Info("PivotService", "Closed unanswered pivots", map[string]interface{}{"count": swept})
	}
	return swept, nil
}

func decodeRecord(record *entity.PivotRecord, trig *trigger.Trigger, bounded *guard.BoundedChange) error {
	if err := json.Unmarshal(record.Trigger, trig); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	if err := json.Unmarshal(record.Change, bounded); err != nil {
		return fmt.Errorf("change: %w", err)
	}
	return nil
}

func slotIds(slots []*entity.Slot) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.Id)
	}
	return ids
}
