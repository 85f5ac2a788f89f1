package guard

import (
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/trigger"

	"github.com/google/uuid"
)

// Policy is the mutation depth allowed per trigger.
type Policy struct {
	DefaultDepth  int
	ExplicitDepth int
}

func DefaultPolicy() Policy {
	return Policy{DefaultDepth: 1, ExplicitDepth: 5}
}

func (p Policy) DepthFor(trig trigger.Trigger) int {
	if trig.IsExplicit() {
		return p.ExplicitDepth
	}
	return p.DefaultDepth
}

// BoundedChange is a SwapResult cut down to what may be applied. Apply holds
// at most Depth resolved proposals; everything else the evaluator proposed
// is in Suggestions (opt-in only) or Unresolved (nothing to swap to).
type BoundedChange struct {
	SwapId      string
	Kind        cascade.Kind
	Depth       int
	Apply       []cascade.Proposal
	Suggestions []cascade.Proposal
	Unresolved  []cascade.Proposal
	Degraded    bool
}

func (b *BoundedChange) IsEmpty() bool {
	return len(b.Apply) == 0
}

func (b *BoundedChange) Proposals() []cascade.Proposal {
	out := make([]cascade.Proposal, 0, len(b.Apply)+len(b.Suggestions)+len(b.Unresolved))
	out = append(out, b.Apply...)
	out = append(out, b.Suggestions...)
	return append(out, b.Unresolved...)
}

// FindSuggestion returns the flagged proposal for slotId, if any.
func (b *BoundedChange) FindSuggestion(slotId uuid.UUID) (cascade.Proposal, bool) {
	for _, s := range b.Suggestions {
		if s.SlotId == slotId {
			return s, true
		}
	}
	return cascade.Proposal{}, false
}

type Guard struct {
	policy Policy
}

func New(policy Policy) *Guard {
	return &Guard{policy: policy}
}

// Bound filters the result through the depth policy. It never adds a
// proposal and never changes a replacement.
//
// Proposals apply in scan order up to depth. An explicit rebuild works on
// the downstream dependents and keeps the anchor slot as it is, unless there
// are no dependents, in which case the anchor itself is rebuilt.
func (g *Guard) Bound(result *cascade.SwapResult, trig trigger.Trigger) *BoundedChange {
	return g.BoundWithPolicy(result, trig, g.policy)
}

// BoundWithPolicy is Bound with a per-call policy.
func (g *Guard) BoundWithPolicy(result *cascade.SwapResult, trig trigger.Trigger, policy Policy) *BoundedChange {
	depth := policy.DepthFor(trig)
	bounded := &BoundedChange{
		SwapId:   result.Id.String(),
		Kind:     result.Kind,
		Depth:    depth,
		Degraded: result.Degraded,
	}

	var ordered []cascade.Proposal
	if trig.IsExplicit() && len(result.Dependents) > 0 {
		ordered = append(ordered, result.Dependents...)
	} else {
		ordered = append(ordered, result.Changed)
		ordered = append(ordered, result.Dependents...)
	}

	// A dependent never applies ahead of an unresolved changed slot.
	blocked := !trig.IsExplicit() && !result.Changed.Resolved()
	for _, p := range ordered {
		switch {
		case !p.Resolved():
			bounded.Unresolved = append(bounded.Unresolved, p)
		case !blocked && len(bounded.Apply) < depth:
			bounded.Apply = append(bounded.Apply, p)
		default:
			bounded.Suggestions = append(bounded.Suggestions, p)
		}
	}
	return bounded
}
