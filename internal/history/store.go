// Package history keeps the bounded, tiered sample window of one instrument.
package history

import (
	"math"
	"sort"
	"time"

	"signalbot/config"
	"signalbot/internal/model"
)

const (
	// PriceEpsilon is the relative price, high or low move that makes a sample significant.
	PriceEpsilon = 0.0001
	// VolumeEpsilon is the relative volume move that makes a sample significant.
	VolumeEpsilon = 0.01
)

// Store is the rolling history of one instrument. It is owned by a single
// worker goroutine and does no locking of its own.
type Store struct {
	instrument string
	tier       config.Tier
	archive    config.Archive

	samples  []model.PriceSample
	archived []model.PriceSample
	// archiveRev counts changes to archived since construction.
	archiveRev uint64
}

// New creates an empty store for instrument under tier.
func New(instrument string, tier config.Tier, archive config.Archive) *Store {
	return &Store{
		instrument: instrument,
		tier:       tier,
		archive:    archive,
		samples:    make([]model.PriceSample, 0, tier.MaxPoints+1),
	}
}

// Instrument returns the key of the owning instrument.
func (s *Store) Instrument() string { return s.instrument }

// Tier returns the active data tier.
func (s *Store) Tier() config.Tier { return s.tier }

// Len returns the number of active samples.
func (s *Store) Len() int { return len(s.samples) }

// ArchiveLen returns the number of archived samples.
func (s *Store) ArchiveLen() int { return len(s.archived) }

// ArchiveRevision changes whenever Optimize moves samples into the archive.
func (s *Store) ArchiveRevision() uint64 { return s.archiveRev }

// Hydrate replaces the store contents with previously persisted samples.
// Both sets are sorted ascending and de-duplicated by timestamp; the active
// set is then optimized against now.
func (s *Store) Hydrate(samples, archived []model.PriceSample, now time.Time) {
	s.samples = ascending(samples)
	s.archived = ascending(archived)
	s.Optimize(now)
}

// Last returns the most recent accepted sample.
func (s *Store) Last() (model.PriceSample, bool) {
	if len(s.samples) == 0 {
		return model.PriceSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Append accepts sample when it is strictly newer than the last accepted
// sample and represents a significant change. Accepted samples trigger
// Optimize with the sample's own timestamp as the clock.
func (s *Store) Append(sample model.PriceSample) bool {
	if last, ok := s.Last(); ok {
		if !sample.TS.After(last.TS) {
			return false
		}
		if !IsSignificant(last, sample) {
			return false
		}
	}
	s.samples = append(s.samples, sample)
	s.Optimize(sample.TS)
	return true
}

// IsSignificant reports whether next differs enough from prev to be kept.
// Every comparison is relative to the previous value.
func IsSignificant(prev, next model.PriceSample) bool {
	return relChange(prev.Price, next.Price) > PriceEpsilon ||
		relChange(prev.Volume, next.Volume) > VolumeEpsilon ||
		relChange(prev.High, next.High) > PriceEpsilon ||
		relChange(prev.Low, next.Low) > PriceEpsilon
}

// relChange returns |next-prev|/|prev|. A zero base counts as an infinite
// change unless next is also zero.
func relChange(prev, next float64) float64 {
	if prev == 0 {
		if next == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(next-prev) / math.Abs(prev)
}

// Optimize enforces the tier budget. Samples older than the archive
// threshold move to the archive first; any remaining excess is trimmed from
// the oldest end. It returns how many samples were archived and trimmed.
func (s *Store) Optimize(now time.Time) (archived, trimmed int) {
	if len(s.samples) <= s.tier.MaxPoints {
		return 0, 0
	}

	if s.archive.Enabled {
		cutoff := now.Add(-s.archive.After)
		n := sort.Search(len(s.samples), func(i int) bool {
			return !s.samples[i].TS.Before(cutoff)
		})
		if n > 0 {
			s.archived = append(s.archived, s.samples[:n]...)
			s.samples = s.samples[n:]
			s.archiveRev++
			archived = n
			if limit := s.archive.MaxPoints; limit > 0 && len(s.archived) > limit {
				s.archived = s.archived[len(s.archived)-limit:]
			}
		}
	}

	if excess := len(s.samples) - s.tier.MaxPoints; excess > 0 {
		s.samples = s.samples[excess:]
		trimmed = excess
	}
	return archived, trimmed
}

// SetTier switches the active tier and re-normalizes the window length.
func (s *Store) SetTier(tier config.Tier, now time.Time) {
	s.tier = tier
	s.Optimize(now)
}

// Samples returns a copy of the active samples, oldest first.
func (s *Store) Samples() []model.PriceSample {
	return append([]model.PriceSample(nil), s.samples...)
}

// Archive returns a copy of the archived samples, oldest first. Archived
// samples never feed indicator computation.
func (s *Store) Archive() []model.PriceSample {
	return append([]model.PriceSample(nil), s.archived...)
}

// Prices returns the active price series, oldest first.
func (s *Store) Prices() []float64 {
	out := make([]float64, len(s.samples))
	for i, p := range s.samples {
		out[i] = p.Price
	}
	return out
}

// Volumes returns the active volume series, oldest first.
func (s *Store) Volumes() []float64 {
	out := make([]float64, len(s.samples))
	for i, p := range s.samples {
		out[i] = p.Volume
	}
	return out
}

// Sufficient reports whether the window has reached the tier's minimum.
func (s *Store) Sufficient() bool {
	return len(s.samples) >= s.tier.MinPoints
}

func ascending(in []model.PriceSample) []model.PriceSample {
	out := append([]model.PriceSample(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	w := 0
	for i := range out {
		if w > 0 && !out[i].TS.After(out[w-1].TS) {
			continue
		}
		out[w] = out[i]
		w++
	}
	return out[:w]
}
