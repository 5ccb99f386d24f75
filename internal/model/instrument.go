package model

// Instrument is one tradeable pair tracked by the engine.
type Instrument struct {
	Name        string `json:"name" yaml:"name"`                 // short id, e.g. "BTC"
	Pair        string `json:"pair" yaml:"pair"`                 // market pair, e.g. "btc_idr"
	DisplayName string `json:"display_name" yaml:"display_name"` // e.g. "Bitcoin"
	Emoji       string `json:"emoji,omitempty" yaml:"emoji"`
	Asset       string `json:"asset" yaml:"asset"` // base asset, matched against the benchmark asset
	Enabled     bool   `json:"enabled" yaml:"enabled"`

	// Secondary reference market for divergence checks. ReferenceRate converts
	// the reference quote into the local quote currency (e.g. USDT→IDR).
	ReferenceSymbol string  `json:"reference_symbol,omitempty" yaml:"reference_symbol"`
	ReferenceRate   float64 `json:"reference_rate,omitempty" yaml:"reference_rate"`
}

// Key returns the identifier used for state, storage and metric labels.
func (i Instrument) Key() string {
	return i.Pair
}
