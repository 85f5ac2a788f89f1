package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/repository/unitofwork"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/pivot/trigger"
	"trip-pivot-be/pkg/provider/status"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

type PollerOptions struct {
	Interval    time.Duration
	Lookahead   time.Duration
	MinSeverity float64
	IgnoreAfter time.Duration
	Concurrency int
}

// StatusPoller checks upcoming slots against the status provider and turns
// significant deltas into triggers. Each delta fires once per slot version.
type StatusPoller struct {
	uowFactory unitofwork.RepositoryFactory
	provider   status.Provider
	pivots     IPivotService
	seen       *cache.Cache
	options    PollerOptions
	logger     logger.ILogger
}

func NewStatusPoller(
	uowFactory unitofwork.RepositoryFactory,
	provider status.Provider,
	pivots IPivotService,
	options PollerOptions,
	log logger.ILogger,
) *StatusPoller {
	if options.Concurrency <= 0 {
		options.Concurrency = 4
	}
	return &StatusPoller{
		uowFactory: uowFactory,
		provider:   provider,
		pivots:     pivots,
		seen:       cache.New(options.Lookahead, options.Lookahead),
		options:    options,
		logger:     log,
	}
}

// Run polls until ctx is cancelled.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.options.Interval)
	defer ticker.Stop()

	p.logger.Info("StatusPoller", "Status poller started", map[string]interface{}{
		"interval":  p.options.Interval.String(),
		"lookahead": p.options.Lookahead.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *StatusPoller) tick(ctx context.Context) {
	if _, err := p.Poll(ctx); err != nil {
		p.logger.Error("StatusPoller", "Status poll failed", map[string]interface{}{"error": err.Error()})
	}
	if p.options.IgnoreAfter > 0 {
		if _, err := p.pivots.SweepIgnored(ctx, p.options.IgnoreAfter); err != nil {
			p.logger.Error("StatusPoller", "Ignored sweep failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Poll runs one pass and returns how many triggers it raised.
func (p *StatusPoller) Poll(ctx context.Context) (int, error) {
	now := time.Now()
	uow := p.uowFactory.NewUnitOfWork(ctx)

	slots, err := uow.SlotRepository().FindStartingBetween(ctx, now, now.Add(p.options.Lookahead))
	if err != nil {
		return 0, perr.Storage(err)
	}

	var raised atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.options.Concurrency)
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			deltas, err := p.provider.GetStatus(gctx, slot.Point(), slot.StartAt, slot.ActivityRef)
			if err != nil {
				p.logger.Warn("StatusPoller", "Status check skipped", map[string]interface{}{
					"slot_id": slot.Id,
					"error":   perr.Upstream("status", err).Error(),
				})
				return nil
			}

			for _, delta := range deltas {
				raw, ok := p.rawFor(slot, delta)
				if !ok {
					continue
				}
				key := fmt.Sprintf("%s:%d:%s", slot.Id, slot.Version, raw.Kind)
				if err := p.seen.Add(key, true, cache.DefaultExpiration); err != nil {
					continue
				}
				if _, err := p.pivots.Ingest(gctx, raw); err != nil {
					p.logger.Warn("StatusPoller", "Trigger evaluation failed", map[string]interface{}{
						"slot_id": slot.Id,
						"kind":    raw.Kind,
						"error":   err.Error(),
					})
					continue
				}
				raised.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(raised.Load()), nil
}

func (p *StatusPoller) rawFor(slot *entity.Slot, delta status.Delta) (trigger.RawInput, bool) {
	if !delta.Significant(p.options.MinSeverity) {
		return trigger.RawInput{}, false
	}

	raw := trigger.RawInput{
		ItineraryId: slot.ItineraryId,
		SlotId:      slot.Id,
		Payload:     map[string]interface{}{"severity": delta.Severity},
		ReceivedAt:  time.Now(),
	}
	switch delta.Kind {
	case status.DeltaVenue:
		raw.Kind = string(trigger.SourceVenueClosed)
	case status.DeltaWeather:
		// rain does not touch a museum
		if !slot.Outdoor {
			return trigger.RawInput{}, false
		}
		raw.Kind = string(trigger.SourceWeather)
		raw.Category = delta.Condition
		raw.Payload["condition"] = delta.Condition
	case status.DeltaTransit:
		raw.Kind = string(trigger.SourceTransitDelay)
		raw.Payload["delay_minutes"] = delta.DelayMinutes
	default:
		return trigger.RawInput{}, false
	}
	return raw, true
}
