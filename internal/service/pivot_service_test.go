package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/repository/contract"
	"trip-pivot-be/internal/repository/unitofwork"
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/escalation"
	"trip-pivot-be/pkg/pivot/fallback"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/pivot/recorder"
	"trip-pivot-be/pkg/pivot/trigger"
	"trip-pivot-be/pkg/provider/candidate"
	"trip-pivot-be/pkg/provider/mood"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []recorder.PivotEvent
}

func (f *fakeRecorder) Record(event recorder.PivotEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) all() []recorder.PivotEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorder.PivotEvent(nil), f.events...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []PivotNotification
}

func (f *fakeNotifier) Notify(_ context.Context, n PivotNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

func (f *fakeNotifier) all() []PivotNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PivotNotification(nil), f.sent...)
}

type fakeFallbackService struct {
	mu      sync.Mutex
	changed []uuid.UUID
}

func (f *fakeFallbackService) RebuildItinerary(_ context.Context, itineraryId uuid.UUID) (*dto.RebuildFallbacksResponse, error) {
	return &dto.RebuildFallbacksResponse{ItineraryId: itineraryId}, nil
}

func (f *fakeFallbackService) RebuildAll(context.Context) ([]*dto.RebuildFallbacksResponse, error) {
	return nil, nil
}

func (f *fakeFallbackService) SlotChanged(_ context.Context, slot *entity.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, slot.Id)
}

func (f *fakeFallbackService) Consume(context.Context) error { return nil }

type stubSearch struct {
	results []entity.Candidate
	err     error
}

func (s *stubSearch) Lookup(context.Context, candidate.Query) ([]entity.Candidate, error) {
	return s.results, s.err
}

type stubMood struct {
	result mood.Result
	err    error
}

func (s *stubMood) Classify(context.Context, string) (mood.Result, error) {
	return s.result, s.err
}

// racingFactory lets a concurrent writer bump a slot right before the first
// swap, or makes every slot read fail.
type racingFactory struct {
	*unitofwork.MemoryRepositoryFactory
	race      *sync.Once
	raceSlot  uuid.UUID
	failReads bool
}

func (f *racingFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &racingUnitOfWork{UnitOfWork: f.MemoryRepositoryFactory.NewUnitOfWork(ctx), factory: f}
}

type racingUnitOfWork struct {
	unitofwork.UnitOfWork
	factory *racingFactory
}

func (u *racingUnitOfWork) SlotRepository() contract.SlotRepository {
	return &racingSlots{SlotRepository: u.UnitOfWork.SlotRepository(), factory: u.factory}
}

type racingSlots struct {
	contract.SlotRepository
	factory *racingFactory
}

func (r *racingSlots) FindByItinerary(ctx context.Context, itineraryId uuid.UUID) ([]*entity.Slot, error) {
	if r.factory.failReads {
		return nil, errors.New("connection refused")
	}
	return r.SlotRepository.FindByItinerary(ctx, itineraryId)
}

func (r *racingSlots) CompareAndSwapAll(ctx context.Context, changes []entity.SlotChange) ([]*entity.Slot, error) {
	if r.factory.race != nil {
		r.factory.race.Do(func() {
			current, _ := r.SlotRepository.FindById(ctx, changes[0].ItineraryId, r.factory.raceSlot)
			_, _ = r.SlotRepository.CompareAndSwap(ctx, entity.SlotChange{
				ItineraryId:     current.ItineraryId,
				SlotId:          current.Id,
				ExpectedVersion: current.Version,
				NewActivity:     entity.Candidate{ActivityRef: "raced", Category: "museum"},
			})
		})
	}
	return r.SlotRepository.CompareAndSwapAll(ctx, changes)
}

type harness struct {
	factory   *racingFactory
	search    *stubSearch
	recorder  *fakeRecorder
	notifier  *fakeNotifier
	fallbacks *fakeFallbackService
	svc       IPivotService

	itineraryId uuid.UUID
	owner       uuid.UUID
	peer        uuid.UUID
	slot        *entity.Slot
}

func newHarness(t *testing.T, opts ...func(*harness, *PivotServiceDeps)) *harness {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNopLogger()

	h := &harness{
		factory:     &racingFactory{MemoryRepositoryFactory: unitofwork.NewMemoryRepositoryFactory()},
		search:      &stubSearch{},
		recorder:    &fakeRecorder{},
		notifier:    &fakeNotifier{},
		fallbacks:   &fakeFallbackService{},
		itineraryId: uuid.New(),
		owner:       uuid.New(),
		peer:        uuid.New(),
	}

	uow := h.factory.NewUnitOfWork(ctx)
	h.slot = &entity.Slot{
		ItineraryId:   h.itineraryId,
		ActivityRef:   "city-museum",
		ActivityName:  "City Museum",
		Category:      "museum",
		Outdoor:       true,
		StartAt:       time.Now().Add(2 * time.Hour),
		EndAt:         time.Now().Add(3 * time.Hour),
		EnergyCost:    2,
		IsShared:      true,
		Version:       3,
	}
	require.NoError(t, uow.SlotRepository().Create(ctx, h.slot))
	require.NoError(t, uow.FallbackRepository().Upsert(ctx, &entity.FallbackEntry{
		SlotId:            h.slot.Id,
		SourceActivityRef: h.slot.ActivityRef,
		Adjacent: []entity.Candidate{
			{ActivityRef: "adj-1", Category: "museum", Lat: 0.001, EnergyCost: 2},
			{ActivityRef: "adj-2", Category: "museum", Lat: 0.002, EnergyCost: 2},
		},
		Indoor:  &entity.Candidate{ActivityRef: "in-1", Category: "museum", Indoor: true, EnergyCost: 1},
		BuiltAt: time.Now(),
	}))

	store := fallback.NewStore(uow.FallbackRepository(), h.search, fallback.DefaultOptions(), log)
	deps := PivotServiceDeps{
		UowFactory:  h.factory,
		Classifier:  trigger.NewClassifier(trigger.DefaultBudgets(), 0.6),
		Evaluator:   cascade.NewEvaluator(store, h.search, cascade.DefaultConfig(), log),
		Guard:       guard.New(guard.DefaultPolicy()),
		Coordinator: escalation.NewCoordinator(escalation.NewMemoryWindow(30*time.Minute), log),
		Fallbacks:   h.fallbacks,
		Store:       store,
		Recorder:    h.recorder,
		Notifier:    h.notifier,
		Options: PivotOptions{
			ConflictReevaluation: 1,
			MoodTimeout:          time.Second,
			AlternativesTimeout:  time.Second,
		},
		Logger: log,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.svc = NewPivotService(deps)
	return h
}

func (h *harness) stored(t *testing.T) *entity.Slot {
	t.Helper()
	slot, err := h.factory.NewUnitOfWork(context.Background()).SlotRepository().FindById(context.Background(), h.itineraryId, h.slot.Id)
	require.NoError(t, err)
	require.NotNil(t, slot)
	return slot
}

func (h *harness) raw(kind string) trigger.RawInput {
	return trigger.RawInput{Kind: kind, ItineraryId: h.itineraryId, SlotId: h.slot.Id}
}

// propose has the owner ask for a rebuild of the shared slot, which goes to
// the group.
func (h *harness) propose(t *testing.T) *dto.EvaluateResponse {
	t.Helper()
	res, err := h.svc.Evaluate(context.Background(), h.owner, &dto.EvaluateRequest{
		Kind:        "rebuild",
		ItineraryId: h.itineraryId,
		SlotId:      h.slot.Id,
	})
	require.NoError(t, err)
	require.Equal(t, string(entity.PivotStatusPending), res.Status)
	return res
}

func TestIngest_VenueClosedOnSharedSlotAutoApplies(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Ingest(context.Background(), h.raw("venue_closed"))

	require.NoError(t, err)
	assert.Equal(t, string(escalation.AutoApplyShared), res.RoutingDecision)
	assert.Equal(t, string(cascade.ChangedSlotOnly), res.Result)
	assert.Equal(t, string(entity.PivotStatusApplied), res.Status)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "adj-1", res.Applied[0].ActivityRef)
	assert.False(t, res.Degraded)

	slot := h.stored(t)
	assert.Equal(t, "adj-1", slot.ActivityRef)
	assert.Equal(t, int64(4), slot.Version)
	assert.Equal(t, []uuid.UUID{h.slot.Id}, h.fallbacks.changed)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, NotificationApplied, sent[0].Kind)
	assert.Empty(t, sent[0].MemberIds)

	events := h.recorder.all()
	require.Len(t, events, 1)
	assert.Equal(t, recorder.ActionNone, events[0].MemberAction)
	assert.Equal(t, res.PivotId, events[0].PivotId)
}

func TestEvaluate_PersonalSlotNotifiesOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	personal := &entity.Slot{
		ItineraryId:   h.itineraryId,
		SequenceIndex: 1,
		ActivityRef:   "spa",
		Category:      "spa",
		StartAt:       time.Now().Add(5 * time.Hour),
		EndAt:         time.Now().Add(6 * time.Hour),
		EnergyCost:    1,
		OwnerMemberId: &h.owner,
	}
	require.NoError(t, h.factory.NewUnitOfWork(ctx).SlotRepository().Create(ctx, personal))
	h.search.results = []entity.Candidate{{ActivityRef: "tea-house", Category: "cafe", EnergyCost: 1, Indoor: true}}

	res, err := h.svc.Evaluate(ctx, h.owner, &dto.EvaluateRequest{
		Kind:        "mood",
		ItineraryId: h.itineraryId,
		SlotId:      personal.Id,
		Category:    "tired",
	})

	require.NoError(t, err)
	assert.Equal(t, string(escalation.AutoApplyIndividual), res.RoutingDecision)
	assert.Equal(t, string(entity.PivotStatusApplied), res.Status)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, []uuid.UUID{h.owner}, sent[0].MemberIds)
}

func TestEvaluate_FirstMoodSignalOnSharedSlotOnlyWatches(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Evaluate(context.Background(), h.owner, &dto.EvaluateRequest{
		Kind:        "mood",
		ItineraryId: h.itineraryId,
		SlotId:      h.slot.Id,
		Category:    "bored",
	})

	require.NoError(t, err)
	assert.Equal(t, string(escalation.WatchOnly), res.RoutingDecision)
	assert.Equal(t, string(entity.PivotStatusWatching), res.Status)
	assert.Empty(t, res.Applied)
	assert.Equal(t, int64(3), h.stored(t).Version)
	assert.Empty(t, h.notifier.all())
	assert.Len(t, h.recorder.all(), 1)
}

func TestEvaluate_CorroboratedMoodIsProposedToGroup(t *testing.T) {
	h := newHarness(t)
	req := &dto.EvaluateRequest{Kind: "mood", ItineraryId: h.itineraryId, SlotId: h.slot.Id, Category: "bored"}

	_, err := h.svc.Evaluate(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	res, err := h.svc.Evaluate(context.Background(), uuid.New(), req)

	require.NoError(t, err)
	assert.Equal(t, string(escalation.ProposeToGroup), res.RoutingDecision)
	assert.Equal(t, string(entity.PivotStatusPending), res.Status)
	assert.Equal(t, int64(3), h.stored(t).Version)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, NotificationProposed, sent[0].Kind)
}

func TestEvaluate_ClassifiesFreeText(t *testing.T) {
	tests := []struct {
		name       string
		mood       *stubMood
		wantSource trigger.Source
	}{
		{"confident", &stubMood{result: mood.Result{Category: "tired", Confidence: 0.9}}, trigger.SourceMoodSignal},
		{"low confidence", &stubMood{result: mood.Result{Category: "tired", Confidence: 0.3}}, trigger.SourceUserText},
		{"classifier down", &stubMood{err: errors.New("503")}, trigger.SourceUserText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(_ *harness, deps *PivotServiceDeps) { deps.Mood = tt.mood })

			res, err := h.svc.Evaluate(context.Background(), h.owner, &dto.EvaluateRequest{
				Kind:        "text",
				ItineraryId: h.itineraryId,
				SlotId:      h.slot.Id,
				Text:        "my feet hurt",
			})

			require.NoError(t, err)
			assert.Equal(t, string(tt.wantSource), res.Source)
		})
	}
}

func TestIngest_ReevaluatesOnVersionConflict(t *testing.T) {
	h := newHarness(t)
	h.factory.race = &sync.Once{}
	h.factory.raceSlot = h.slot.Id
	h.search.results = []entity.Candidate{{ActivityRef: "found-1", Category: "museum", Lat: 0.001, EnergyCost: 2}}

	res, err := h.svc.Ingest(context.Background(), h.raw("venue_closed"))

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusApplied), res.Status)
	slot := h.stored(t)
	assert.Equal(t, "found-1", slot.ActivityRef)
	assert.Equal(t, int64(5), slot.Version)
}

func TestIngest_GivesUpAfterConflictBudget(t *testing.T) {
	h := newHarness(t, func(_ *harness, deps *PivotServiceDeps) { deps.Options.ConflictReevaluation = 0 })
	h.factory.race = &sync.Once{}
	h.factory.raceSlot = h.slot.Id

	res, err := h.svc.Ingest(context.Background(), h.raw("venue_closed"))

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusFailed), res.Status)
	assert.Equal(t, NoBetterFit, res.Message)
	assert.Equal(t, "raced", h.stored(t).ActivityRef)
	assert.Empty(t, h.fallbacks.changed)
}

func TestIngest_Failures(t *testing.T) {
	t.Run("storage", func(t *testing.T) {
		h := newHarness(t)
		h.factory.failReads = true

		_, err := h.svc.Ingest(context.Background(), h.raw("venue_closed"))

		require.ErrorIs(t, err, perr.ErrStorageFailure)
		events := h.recorder.all()
		require.Len(t, events, 1)
		assert.True(t, events[0].Failed)
		assert.NotEmpty(t, events[0].FailureReason)
	})

	t.Run("unknown slot", func(t *testing.T) {
		h := newHarness(t)
		raw := h.raw("venue_closed")
		raw.SlotId = uuid.New()

		_, err := h.svc.Ingest(context.Background(), raw)

		require.ErrorIs(t, err, perr.ErrNotFound)
	})

	t.Run("unknown itinerary", func(t *testing.T) {
		h := newHarness(t)
		raw := h.raw("venue_closed")
		raw.ItineraryId = uuid.New()

		_, err := h.svc.Ingest(context.Background(), raw)

		require.ErrorIs(t, err, perr.ErrNotFound)
	})
}

func TestAct_AcceptAppliesProposalOnce(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	assert.Equal(t, int64(3), h.stored(t).Version)

	res, err := h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{Action: "accepted"})

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusApplied), res.Status)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, int64(4), h.stored(t).Version)
	assert.Equal(t, []uuid.UUID{h.slot.Id}, h.fallbacks.changed)

	_, err = h.svc.Act(context.Background(), uuid.New(), proposal.PivotId, &dto.ActionRequest{Action: "accepted"})
	require.ErrorIs(t, err, perr.ErrAlreadyResolved)
	assert.Equal(t, int64(4), h.stored(t).Version)

	events := h.recorder.all()
	require.Len(t, events, 2)
	assert.Equal(t, recorder.ActionAccepted, events[1].MemberAction)
	require.NotNil(t, events[1].ActingMemberId)
	assert.Equal(t, h.peer, *events[1].ActingMemberId)
}

func TestAct_RequesterCannotApproveOwnGroupProposal(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)
	require.Equal(t, string(escalation.ProposeToGroup), proposal.RoutingDecision)

	tests := []struct {
		name string
		req  *dto.ActionRequest
	}{
		{"accepted", &dto.ActionRequest{Action: "accepted"}},
		{"selected alternative", &dto.ActionRequest{Action: "selected_alt", ActivityRef: "adj-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Act(context.Background(), h.owner, proposal.PivotId, tt.req)
			require.ErrorIs(t, err, ErrRequesterConsent)
			assert.ErrorIs(t, err, perr.ErrInvalidInput)
		})
	}

	assert.Equal(t, int64(3), h.stored(t).Version)
	pivots, err := h.svc.ListPivots(context.Background(), h.itineraryId, 10)
	require.NoError(t, err)
	require.Len(t, pivots, 1)
	assert.Equal(t, string(entity.PivotStatusPending), pivots[0].Status)

	_, err = h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{Action: "accepted"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), h.stored(t).Version)
}

func TestAct_StaleGroupProposalGoesBackToGroup(t *testing.T) {
	h := newHarness(t)
	h.search.results = []entity.Candidate{{ActivityRef: "found-1", Category: "museum", Lat: 0.001, EnergyCost: 2}}
	proposal := h.propose(t)
	h.factory.race = &sync.Once{}
	h.factory.raceSlot = h.slot.Id

	res, err := h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{Action: "accepted"})

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusSuperseded), res.Status)
	assert.True(t, res.Reevaluated)
	assert.Empty(t, res.Applied)
	require.NotNil(t, res.ProposalId)

	// nothing the group never saw was written
	slot := h.stored(t)
	assert.Equal(t, "raced", slot.ActivityRef)
	assert.Equal(t, int64(4), slot.Version)
	assert.Empty(t, h.fallbacks.changed)

	pivots, err := h.svc.ListPivots(context.Background(), h.itineraryId, 10)
	require.NoError(t, err)
	require.Len(t, pivots, 2)
	statuses := map[uuid.UUID]string{}
	for _, p := range pivots {
		statuses[p.Id] = p.Status
	}
	assert.Equal(t, string(entity.PivotStatusSuperseded), statuses[proposal.PivotId])
	assert.Equal(t, string(entity.PivotStatusPending), statuses[*res.ProposalId])

	sent := h.notifier.all()
	last := sent[len(sent)-1]
	assert.Equal(t, NotificationProposed, last.Kind)
	assert.Equal(t, *res.ProposalId, last.PivotId)
	assert.Empty(t, last.MemberIds)

	again, err := h.svc.Act(context.Background(), h.peer, *res.ProposalId, &dto.ActionRequest{Action: "accepted"})
	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusApplied), again.Status)
	slot = h.stored(t)
	assert.Equal(t, "found-1", slot.ActivityRef)
	assert.Equal(t, int64(5), slot.Version)
}

func TestChangesFor_NamesEachSlotOnce(t *testing.T) {
	anchor := cascade.Proposal{SlotId: uuid.New(), ExpectedVersion: 3, Replacement: &entity.Candidate{ActivityRef: "adj-1"}}
	lunch := cascade.Proposal{SlotId: uuid.New(), ExpectedVersion: 1, Replacement: &entity.Candidate{ActivityRef: "cafe-2"}}
	bounded := &guard.BoundedChange{Apply: []cascade.Proposal{anchor}, Suggestions: []cascade.Proposal{lunch}}

	tests := []struct {
		name         string
		optIn        []uuid.UUID
		includeApply bool
		want         []uuid.UUID
	}{
		{"repeated opt-in", []uuid.UUID{lunch.SlotId, lunch.SlotId}, false, []uuid.UUID{lunch.SlotId}},
		{"opt-in with apply", []uuid.UUID{lunch.SlotId, lunch.SlotId}, true, []uuid.UUID{anchor.SlotId, lunch.SlotId}},
		{"apply only", nil, true, []uuid.UUID{anchor.SlotId}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := changesFor(bounded, tt.optIn, tt.includeApply)
			got := make([]uuid.UUID, 0, len(changes))
			for _, c := range changes {
				got = append(got, c.SlotId)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAct_ConcurrentAcceptsApplyOnce(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Act(context.Background(), uuid.New(), proposal.PivotId, &dto.ActionRequest{Action: "accepted"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, perr.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(4), h.stored(t).Version)
}

func TestAct_SelectedAlternative(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)

	_, err := h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{
		Action:      "selected_alt",
		ActivityRef: "nowhere",
	})
	require.ErrorIs(t, err, ErrUnknownAlternative)

	res, err := h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{
		Action:      "selected_alt",
		ActivityRef: "adj-2",
	})

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusApplied), res.Status)
	slot := h.stored(t)
	assert.Equal(t, "adj-2", slot.ActivityRef)
	assert.Equal(t, int64(4), slot.Version)
}

func TestAct_ExpandedAlternativesKeepsProposalOpen(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)

	res, err := h.svc.Act(context.Background(), h.owner, proposal.PivotId, &dto.ActionRequest{Action: "expanded_alts"})

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusPending), res.Status)
	refs := make([]string, 0, len(res.Alternatives))
	for _, alt := range res.Alternatives {
		refs = append(refs, alt.ActivityRef)
	}
	assert.Equal(t, []string{"adj-1", "adj-2", "in-1"}, refs)

	_, err = h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{Action: "accepted"})
	require.NoError(t, err)
}

func TestAct_Dismissed(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)

	res, err := h.svc.Act(context.Background(), h.owner, proposal.PivotId, &dto.ActionRequest{Action: "dismissed"})

	require.NoError(t, err)
	assert.Equal(t, string(entity.PivotStatusDismissed), res.Status)
	assert.Equal(t, int64(3), h.stored(t).Version)

	sent := h.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, NotificationResolved, sent[1].Kind)
}

func TestAct_Rejects(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)

	tests := []struct {
		name    string
		pivotId uuid.UUID
		req     *dto.ActionRequest
		want    error
	}{
		{"invalid action", proposal.PivotId, &dto.ActionRequest{Action: "shrug"}, ErrInvalidAction},
		{"unknown pivot", uuid.New(), &dto.ActionRequest{Action: "accepted"}, perr.ErrNotFound},
		{"unknown opt-in", proposal.PivotId, &dto.ActionRequest{Action: "accepted", OptInSlotIds: []uuid.UUID{uuid.New()}}, ErrUnknownSuggestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Act(context.Background(), h.peer, tt.pivotId, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(3), h.stored(t).Version)
}

func TestSweepIgnored(t *testing.T) {
	h := newHarness(t)
	proposal := h.propose(t)

	swept, err := h.svc.SweepIgnored(context.Background(), -time.Second)

	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	pivots, err := h.svc.ListPivots(context.Background(), h.itineraryId, 10)
	require.NoError(t, err)
	require.Len(t, pivots, 1)
	assert.Equal(t, string(entity.PivotStatusIgnored), pivots[0].Status)
	assert.NotNil(t, pivots[0].ResolvedAt)

	_, err = h.svc.Act(context.Background(), h.peer, proposal.PivotId, &dto.ActionRequest{Action: "accepted"})
	require.ErrorIs(t, err, perr.ErrAlreadyResolved)

	events := h.recorder.all()
	assert.Equal(t, recorder.ActionIgnored, events[len(events)-1].MemberAction)

	swept, err = h.svc.SweepIgnored(context.Background(), -time.Second)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestSweepIgnored_UnreadableRecordIsClosedButNotRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	broken := &entity.PivotRecord{
		ItineraryId:     h.itineraryId,
		AffectedSlotId:  h.slot.Id,
		RoutingDecision: string(escalation.ProposeToGroup),
		Status:          entity.PivotStatusPending,
		Trigger:         []byte("{"),
		Change:          []byte("{}"),
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, h.factory.NewUnitOfWork(ctx).PivotRepository().Create(ctx, broken))

	swept, err := h.svc.SweepIgnored(ctx, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Empty(t, h.recorder.all())

	pivots, err := h.svc.ListPivots(ctx, h.itineraryId, 10)
	require.NoError(t, err)
	require.Len(t, pivots, 1)
	assert.Equal(t, string(entity.PivotStatusIgnored), pivots[0].Status)
}
