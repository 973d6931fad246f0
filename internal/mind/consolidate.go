package mind

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type ConsolidationPolicy struct {
	Interval time.Duration

	WorkingCap int
	ShortCap   int
	LongCap    int

	WorkingExpiry time.Duration
	ShortExpiry   time.Duration

	// Working records promote on either enough touches or enough
	// importance; short records need LongPasses passes above
	// LongImportance to reach the long tier.
	PromoteTouches    int
	PromoteImportance float64
	LongPasses        int
	LongImportance    float64
}

func DefaultConsolidationPolicy() ConsolidationPolicy {
	return ConsolidationPolicy{
		Interval:          10 * time.Second,
		WorkingCap:        5,
		ShortCap:          50,
		LongCap:           512,
		WorkingExpiry:     30 * time.Second,
		ShortExpiry:       10 * time.Minute,
		PromoteTouches:    2,
		PromoteImportance: 0.3,
		LongPasses:        2,
		LongImportance:    0.6,
	}
}

type ConsolidationStats struct {
	Expired  int
	Promoted int
	ToLong   int
	Evicted  int
	Archived int
}

// MemoryConsolidation runs the three-tier maintenance pass: expiry,
// promotion, then capacity eviction. Long-tier evictions go to the sink so
// nothing important is lost silently.
type MemoryConsolidation struct {
	pol  ConsolidationPolicy
	sink MemorySink
}

func NewMemoryConsolidation(pol ConsolidationPolicy, sink MemorySink) *MemoryConsolidation {
	return &MemoryConsolidation{pol: pol, sink: sink}
}

func (m *MemoryConsolidation) Name() string            { return "consolidation" }
func (m *MemoryConsolidation) Interval() time.Duration { return m.pol.Interval }

func (m *MemoryConsolidation) OnTick(_ context.Context, s *State) (Delta, error) {
	stats, archived := s.consolidateMemories(m.pol, time.Now())
	if m.sink != nil {
		for _, rec := range archived {
			m.sink.ArchiveMemory(s.AgentID(), rec)
		}
	}
	total := stats.Expired + stats.Promoted + stats.ToLong + stats.Evicted
	if total == 0 {
		return Delta{}, nil
	}
	return Delta{
		Events: total,
		Note: fmt.Sprintf("expired=%d promoted=%d long=%d evicted=%d",
			stats.Expired, stats.Promoted, stats.ToLong, stats.Evicted),
	}, nil
}

// consolidateMemories holds the memory lock for the whole pass so the tier
// capacity invariant holds the moment it returns.
func (s *State) consolidateMemories(pol ConsolidationPolicy, now time.Time) (ConsolidationStats, []MemoryRecord) {
	var st ConsolidationStats
	var archived []MemoryRecord

	s.memMu.Lock()
	defer s.memMu.Unlock()

	// Expiry first so dead records cannot promote.
	s.working, st.Expired = dropExpired(s.working, now, pol.WorkingExpiry, st.Expired)
	s.short, st.Expired = dropExpired(s.short, now, pol.ShortExpiry, st.Expired)

	var keep []MemoryRecord
	for _, r := range s.working {
		if r.Touches >= pol.PromoteTouches || r.Importance >= pol.PromoteImportance {
			r.Tier = TierShort
			r.Passes = 0
			s.short = append(s.short, r)
			st.Promoted++
			continue
		}
		keep = append(keep, r)
	}
	s.working = keep

	keep = nil
	for _, r := range s.short {
		if r.Importance >= pol.LongImportance {
			r.Passes++
			if r.Passes >= pol.LongPasses {
				r.Tier = TierLong
				s.long = append(s.long, r)
				st.ToLong++
				continue
			}
		}
		keep = append(keep, r)
	}
	s.short = keep

	var evicted []MemoryRecord
	s.working, evicted = evictOver(s.working, pol.WorkingCap)
	st.Evicted += len(evicted)
	s.short, evicted = evictOver(s.short, pol.ShortCap)
	st.Evicted += len(evicted)
	s.long, evicted = evictOver(s.long, pol.LongCap)
	st.Evicted += len(evicted)
	st.Archived = len(evicted)
	archived = evicted

	return st, archived
}

func dropExpired(recs []MemoryRecord, now time.Time, ttl time.Duration, expired int) ([]MemoryRecord, int) {
	if ttl <= 0 {
		return recs, expired
	}
	var keep []MemoryRecord
	for _, r := range recs {
		if now.Sub(r.Touched) > ttl {
			expired++
			continue
		}
		keep = append(keep, r)
	}
	return keep, expired
}

// evictOver trims the least important, least recently touched records.
func evictOver(recs []MemoryRecord, limit int) ([]MemoryRecord, []MemoryRecord) {
	if limit <= 0 || len(recs) <= limit {
		return recs, nil
	}
	sorted := append([]MemoryRecord(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Importance != sorted[j].Importance {
			return sorted[i].Importance < sorted[j].Importance
		}
		return sorted[i].Touched.Before(sorted[j].Touched)
	})
	n := len(sorted) - limit
	return sorted[n:], sorted[:n]
}
