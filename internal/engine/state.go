package engine

import (
	"time"

	"signalbot/config"
	"signalbot/internal/history"
	"signalbot/internal/model"
	"signalbot/internal/portfolio"
)

// InstrumentState is everything one instrument owns. Only its worker
// goroutine touches it.
type InstrumentState struct {
	Instrument model.Instrument
	History    *history.Store
	Book       *portfolio.Book
	Stats      model.SignalStats

	LastDecision model.SignalDecision
	LastPrice    float64
	LastCycle    time.Time

	dirty bool
	// savedArchiveRev is the History archive revision last written.
	savedArchiveRev uint64
}

// NewInstrumentState creates a flat instrument with an empty window.
func NewInstrumentState(inst model.Instrument, tier config.Tier, archive config.Archive, limits portfolio.RiskLimits) *InstrumentState {
	return &InstrumentState{
		Instrument: inst,
		History:    history.New(inst.Key(), tier, archive),
		Book:       portfolio.NewBook(inst, limits),
	}
}

// InstrumentStatus is a point-in-time copy of an InstrumentState.
type InstrumentStatus struct {
	Instrument   model.Instrument      `json:"instrument"`
	Tier         string                `json:"tier"`
	Points       int                   `json:"points"`
	Ready        bool                  `json:"ready"` // window has reached the tier minimum
	Archived     int                   `json:"archived"`
	State        portfolio.State       `json:"state"`
	Position     *model.Position       `json:"position,omitempty"`
	Stats        model.SignalStats     `json:"stats"`
	LastDecision *model.SignalDecision `json:"last_decision,omitempty"`
	LastPrice    float64               `json:"last_price"`
	LastCycle    time.Time             `json:"last_cycle"`
}

// Status copies the state.
func (s *InstrumentState) Status() InstrumentStatus {
	st := InstrumentStatus{
		Instrument: s.Instrument,
		Tier:       s.History.Tier().Name,
		Points:     s.History.Len(),
		Ready:      s.History.Sufficient(),
		Archived:   s.History.ArchiveLen(),
		State:      s.Book.State(),
		Stats:      s.Stats,
		LastPrice:  s.LastPrice,
		LastCycle:  s.LastCycle,
	}
	if pos, ok := s.Book.Position(); ok {
		st.Position = &pos
	}
	if !s.LastCycle.IsZero() {
		d := s.LastDecision
		d.Reasons = append([]string(nil), d.Reasons...)
		d.Market = append([]string(nil), d.Market...)
		st.LastDecision = &d
	}
	return st
}
