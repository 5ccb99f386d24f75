package history

import (
	"testing"
	"time"

	"signalbot/config"
	"signalbot/internal/model"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sample(offset time.Duration, price, volume float64) model.PriceSample {
	return model.PriceSample{TS: t0.Add(offset), Price: price, High: price * 1.01, Low: price * 0.99, Volume: volume}
}

func testTier(max, min int) config.Tier {
	return config.Tier{Name: "test", MaxPoints: max, MinPoints: min, SampleInterval: 5 * time.Second}
}

func TestIsSignificant(t *testing.T) {
	base := model.PriceSample{Price: 1000, High: 1010, Low: 990, Volume: 500}
	tests := []struct {
		name string
		next model.PriceSample
		want bool
	}{
		{"identical", base, false},
		{"price below epsilon", model.PriceSample{Price: 1000.05, High: 1010, Low: 990, Volume: 500}, false},
		{"price above epsilon", model.PriceSample{Price: 1000.2, High: 1010, Low: 990, Volume: 500}, true},
		{"price drop above epsilon", model.PriceSample{Price: 999.8, High: 1010, Low: 990, Volume: 500}, true},
		{"volume below epsilon", model.PriceSample{Price: 1000, High: 1010, Low: 990, Volume: 504}, false},
		{"volume above epsilon", model.PriceSample{Price: 1000, High: 1010, Low: 990, Volume: 506}, true},
		{"high moved", model.PriceSample{Price: 1000, High: 1011, Low: 990, Volume: 500}, true},
		{"low moved", model.PriceSample{Price: 1000, High: 1010, Low: 989, Volume: 500}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSignificant(base, tt.next); got != tt.want {
				t.Errorf("IsSignificant = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSignificant_ZeroVolumeBase(t *testing.T) {
	prev := model.PriceSample{Price: 10, High: 10, Low: 10}
	if !IsSignificant(prev, model.PriceSample{Price: 10, High: 10, Low: 10, Volume: 1}) {
		t.Error("volume appearing from zero should be significant")
	}
	if IsSignificant(prev, prev) {
		t.Error("zero to zero should not be significant")
	}
}

func TestAppend_RejectsInsignificantAndOutOfOrder(t *testing.T) {
	s := New("btc_idr", testTier(100, 10), config.Archive{})

	if !s.Append(sample(0, 100, 10)) {
		t.Fatal("first sample must be accepted")
	}
	if s.Append(sample(time.Second, 100, 10)) {
		t.Error("identical sample should be discarded")
	}
	if s.Append(sample(-time.Second, 105, 10)) {
		t.Error("older sample should be rejected")
	}
	if s.Append(sample(0, 105, 10)) {
		t.Error("same timestamp should be rejected")
	}
	if !s.Append(sample(2*time.Second, 101, 10)) {
		t.Error("1% move should be accepted")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 samples, got %d", s.Len())
	}
}

func appendRamp(t *testing.T, s *Store, n int, step time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		if !s.Append(sample(time.Duration(i)*step, 100*(1+0.01*float64(i)), 10)) {
			t.Fatalf("sample %d rejected", i)
		}
	}
}

func TestOptimize_ArchivesOldThenKeepsBudget(t *testing.T) {
	s := New("btc_idr", testTier(5, 2), config.Archive{Enabled: true, After: 2 * time.Minute, MaxPoints: 100})
	appendRamp(t, s, 8, time.Minute)

	if s.Len() != 5 {
		t.Fatalf("expected 5 active samples, got %d", s.Len())
	}
	if s.ArchiveLen() != 3 {
		t.Fatalf("expected 3 archived samples, got %d", s.ArchiveLen())
	}
	active := s.Samples()
	if !active[0].TS.Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("oldest active sample at %v, want +3m", active[0].TS)
	}
	archived := s.Archive()
	for i, a := range archived {
		if !a.TS.Equal(t0.Add(time.Duration(i) * time.Minute)) {
			t.Errorf("archive[%d] at %v", i, a.TS)
		}
	}
	if got := len(s.Prices()); got != 5 {
		t.Errorf("archived samples leaked into prices: %d", got)
	}
	if s.ArchiveRevision() == 0 {
		t.Error("archive revision not bumped")
	}
}

func TestOptimize_TrimsWhenArchiveDisabled(t *testing.T) {
	s := New("btc_idr", testTier(5, 2), config.Archive{})
	appendRamp(t, s, 8, time.Minute)

	if s.Len() != 5 || s.ArchiveLen() != 0 {
		t.Fatalf("len=%d archive=%d, want 5/0", s.Len(), s.ArchiveLen())
	}
	if first := s.Samples()[0]; !first.TS.Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("oldest sample at %v, want +3m", first.TS)
	}
}

func TestOptimize_TrimsWhenNothingOldEnough(t *testing.T) {
	s := New("btc_idr", testTier(5, 2), config.Archive{Enabled: true, After: time.Hour, MaxPoints: 100})
	appendRamp(t, s, 8, time.Second)

	if s.Len() != 5 || s.ArchiveLen() != 0 {
		t.Fatalf("len=%d archive=%d, want 5/0", s.Len(), s.ArchiveLen())
	}
	if s.ArchiveRevision() != 0 {
		t.Errorf("trim-only optimize changed archive revision to %d", s.ArchiveRevision())
	}
}

func TestOptimize_ArchiveBounded(t *testing.T) {
	s := New("btc_idr", testTier(3, 1), config.Archive{Enabled: true, After: time.Second, MaxPoints: 2})
	appendRamp(t, s, 10, time.Minute)

	if s.ArchiveLen() != 2 {
		t.Fatalf("archive len %d, want 2", s.ArchiveLen())
	}
	if s.Len() > 3 {
		t.Fatalf("active len %d over budget", s.Len())
	}
}

func TestSetTier_Renormalizes(t *testing.T) {
	s := New("btc_idr", testTier(10, 2), config.Archive{})
	appendRamp(t, s, 10, time.Second)

	s.SetTier(testTier(4, 2), t0.Add(10*time.Second))
	if s.Len() != 4 {
		t.Errorf("expected 4 samples after switching tier, got %d", s.Len())
	}
	if s.Tier().MaxPoints != 4 {
		t.Errorf("tier not switched")
	}
}

func TestSufficient(t *testing.T) {
	s := New("btc_idr", testTier(10, 3), config.Archive{})
	appendRamp(t, s, 2, time.Second)
	if s.Sufficient() {
		t.Error("2 of 3 points should be insufficient")
	}
	s.Append(sample(10*time.Second, 200, 10))
	if !s.Sufficient() {
		t.Error("3 of 3 points should be sufficient")
	}
}

func TestHydrate_SortsAndDeduplicates(t *testing.T) {
	s := New("btc_idr", testTier(10, 2), config.Archive{})
	in := []model.PriceSample{
		sample(3*time.Second, 103, 1),
		sample(1*time.Second, 101, 1),
		sample(2*time.Second, 102, 1),
		sample(2*time.Second, 999, 1),
	}
	s.Hydrate(in, nil, t0.Add(time.Minute))

	got := s.Prices()
	want := []float64{101, 102, 103}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if in[0].Price != 103 {
		t.Error("hydrate must not reorder the caller's slice")
	}
}

func TestSamples_ReturnsCopy(t *testing.T) {
	s := New("btc_idr", testTier(10, 2), config.Archive{})
	appendRamp(t, s, 3, time.Second)
	got := s.Samples()
	got[0].Price = -1
	if s.Prices()[0] == -1 {
		t.Error("Samples must return a copy")
	}
}
