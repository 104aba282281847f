// Package constraint holds the registry of logical relations between
// contracts and derives no-arbitrage probability bounds from a price
// vector. Bounds are a total function of current prices only — derivation
// never depends on another ticker's derived bound, so one pass over the
// registry is always enough.
package constraint

import (
	"fmt"
	"sort"
	"sync"

	"arbcore/internal/coreerr"
	"arbcore/pkg/types"
)

// Engine owns the constraint registry. All operations are synchronous and
// must not suspend, matching the core's single-threaded-per-tick contract.
type Engine struct {
	mu        sync.RWMutex
	nextID    uint64
	byID      map[uint64]types.Constraint
	byTicker  map[string]map[uint64]struct{} // ticker -> set of constraint ids
}

// New creates an empty constraint registry.
func New() *Engine {
	return &Engine{
		nextID:   1,
		byID:     make(map[uint64]types.Constraint),
		byTicker: make(map[string]map[uint64]struct{}),
	}
}

// Register validates shape per kind, assigns an id, and indexes the
// constraint by every ticker it references. Registering is the only way
// ids are minted; re-registering an existing id is not supported — use
// Remove then Register.
func (e *Engine) Register(kind types.ConstraintKind, lhs, rhs []string, description string) (types.Constraint, error) {
	if err := validateShape(kind, lhs, rhs); err != nil {
		return types.Constraint{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := types.Constraint{
		ID:          e.nextID,
		Kind:        kind,
		LHS:         append([]string(nil), lhs...),
		RHS:         append([]string(nil), rhs...),
		Description: description,
	}
	e.nextID++
	e.byID[c.ID] = c
	for _, ticker := range c.AllTickers() {
		set, ok := e.byTicker[ticker]
		if !ok {
			set = make(map[uint64]struct{})
			e.byTicker[ticker] = set
		}
		set[c.ID] = struct{}{}
	}
	return c, nil
}

// RegisterSubset is a convenience wrapper for an A ⊂ B relation.
func (e *Engine) RegisterSubset(a, b, description string) (types.Constraint, error) {
	return e.Register(types.ConstraintSubset, []string{a}, []string{b}, description)
}

// RegisterTemporal is a convenience wrapper for an earlier ⊂ later relation.
func (e *Engine) RegisterTemporal(earlier, later, description string) (types.Constraint, error) {
	return e.Register(types.ConstraintTemporal, []string{earlier}, []string{later}, description)
}

// RegisterPartition is a convenience wrapper for a mutually exclusive,
// exhaustive set of outcomes.
func (e *Engine) RegisterPartition(tickers []string, description string) (types.Constraint, error) {
	return e.Register(types.ConstraintPartition, nil, tickers, description)
}

func validateShape(kind types.ConstraintKind, lhs, rhs []string) error {
	switch kind {
	case types.ConstraintSubset, types.ConstraintTemporal:
		if len(lhs) != 1 || len(rhs) != 1 {
			return fmt.Errorf("%w: %s requires exactly one lhs and one rhs ticker", coreerr.ErrInvalidConstraint, kind)
		}
	case types.ConstraintPartition:
		if len(rhs) < 2 {
			return fmt.Errorf("%w: partition requires at least two member tickers", coreerr.ErrInvalidConstraint)
		}
		if len(lhs) != 0 {
			return fmt.Errorf("%w: partition must not carry an lhs", coreerr.ErrInvalidConstraint)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", coreerr.ErrInvalidConstraint, kind)
	}
	return nil
}

// Remove deletes a constraint by id, scrubbing it from every ticker index
// entry. Returns false if the id is unknown.
func (e *Engine) Remove(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byID[id]
	if !ok {
		return false
	}
	delete(e.byID, id)
	for _, ticker := range c.AllTickers() {
		if set, ok := e.byTicker[ticker]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(e.byTicker, ticker)
			}
		}
	}
	return true
}

// Get returns a single constraint by id.
func (e *Engine) Get(id uint64) (types.Constraint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.byID[id]
	return c, ok
}

// ConstraintsFor returns every constraint referencing ticker.
func (e *Engine) ConstraintsFor(ticker string) []types.Constraint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.byTicker[ticker]
	out := make([]types.Constraint, 0, len(ids))
	for id := range ids {
		out = append(out, e.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every registered constraint, sorted by id.
func (e *Engine) All() []types.Constraint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Constraint, 0, len(e.byID))
	for _, c := range e.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BoundsFor derives the merged probability bound for a single ticker given
// a price vector. Constraints whose required prices are missing from
// prices are skipped.
func (e *Engine) BoundsFor(ticker string, prices map[string]float64) (types.ProbabilityBound, bool) {
	constraints := e.ConstraintsFor(ticker)
	var bounds []types.ProbabilityBound
	for _, c := range constraints {
		if b, ok := deriveBound(c, ticker, prices); ok {
			bounds = append(bounds, b)
		}
	}
	if len(bounds) == 0 {
		return types.ProbabilityBound{}, false
	}
	return Merge(bounds), true
}

// AllBounds derives bounds for every ticker that appears in any registered
// constraint. One pass suffices: derivation uses only current prices, never
// other derived bounds.
func (e *Engine) AllBounds(prices map[string]float64) map[string]types.ProbabilityBound {
	e.mu.RLock()
	tickers := make([]string, 0, len(e.byTicker))
	for t := range e.byTicker {
		tickers = append(tickers, t)
	}
	e.mu.RUnlock()

	out := make(map[string]types.ProbabilityBound, len(tickers))
	for _, t := range tickers {
		if b, ok := e.BoundsFor(t, prices); ok {
			out[t] = b
		}
	}
	return out
}

// Violations reports every ticker whose current price lies outside its
// derived bound by at least minMagnitude, sorted by magnitude descending.
func (e *Engine) Violations(prices map[string]float64, minMagnitude float64) []types.ConstraintViolation {
	bounds := e.AllBounds(prices)
	out := make([]types.ConstraintViolation, 0, len(bounds))
	for ticker, bound := range bounds {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		mag := bound.Violation(price)
		if mag < minMagnitude {
			continue
		}
		out = append(out, types.ConstraintViolation{
			Ticker:       ticker,
			Price:        price,
			Bound:        bound,
			Magnitude:    mag,
			ConstraintID: bound.SourceID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Magnitude > out[j].Magnitude })
	return out
}

// SeriesMarket is the minimal shape AutoDeriveTemporal needs from a market
// record: its ticker, series key, and expiration.
type SeriesMarket struct {
	Ticker     string
	Series     string
	Expiration int64 // unix seconds, used only for ordering
}

// AutoDeriveTemporal registers an earlier⊂later temporal constraint for
// every adjacent pair within a series, once markets are sorted by
// expiration. Returns the newly registered constraints.
func (e *Engine) AutoDeriveTemporal(markets []SeriesMarket) ([]types.Constraint, error) {
	bySeries := make(map[string][]SeriesMarket)
	for _, m := range markets {
		bySeries[m.Series] = append(bySeries[m.Series], m)
	}

	var created []types.Constraint
	for series, ms := range bySeries {
		sort.Slice(ms, func(i, j int) bool { return ms[i].Expiration < ms[j].Expiration })
		for i := 0; i+1 < len(ms); i++ {
			desc := fmt.Sprintf("auto-derived temporal for series %s", series)
			c, err := e.RegisterTemporal(ms[i].Ticker, ms[i+1].Ticker, desc)
			if err != nil {
				return created, err
			}
			created = append(created, c)
		}
	}
	return created, nil
}

// Merge intersects a list of bounds for the same ticker: the merged lower
// is the max of inputs, the merged upper is the min, and confidence is the
// min. Merge is associative and commutative over the input list.
func Merge(bounds []types.ProbabilityBound) types.ProbabilityBound {
	merged := bounds[0]
	for _, b := range bounds[1:] {
		if b.Lower > merged.Lower {
			merged.Lower = b.Lower
		}
		if b.Upper < merged.Upper {
			merged.Upper = b.Upper
		}
		if b.Confidence < merged.Confidence {
			merged.Confidence = b.Confidence
		}
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// deriveBound computes the bound a single constraint implies on ticker,
// given the current price vector. Returns false if a required price is
// missing.
func deriveBound(c types.Constraint, ticker string, prices map[string]float64) (types.ProbabilityBound, bool) {
	switch c.Kind {
	case types.ConstraintSubset, types.ConstraintTemporal:
		a, b := c.LHS[0], c.RHS[0]
		pa, aok := prices[a]
		pb, bok := prices[b]
		if !aok || !bok {
			return types.ProbabilityBound{}, false
		}
		switch ticker {
		case b:
			return types.ProbabilityBound{Ticker: ticker, Lower: pa, Upper: 1, SourceID: c.ID, Confidence: 1}, true
		case a:
			return types.ProbabilityBound{Ticker: ticker, Lower: 0, Upper: pb, SourceID: c.ID, Confidence: 1}, true
		default:
			return types.ProbabilityBound{}, false
		}
	case types.ConstraintPartition:
		var present bool
		var sum float64
		pOwn, ok := prices[ticker]
		if !ok {
			return types.ProbabilityBound{}, false
		}
		for _, t := range c.RHS {
			p, ok := prices[t]
			if !ok {
				continue
			}
			sum += p
			present = true
		}
		if !present {
			return types.ProbabilityBound{}, false
		}
		upper := clamp01(1 - (sum - pOwn))
		return types.ProbabilityBound{Ticker: ticker, Lower: 0, Upper: upper, SourceID: c.ID, Confidence: 1}, true
	default:
		return types.ProbabilityBound{}, false
	}
}
