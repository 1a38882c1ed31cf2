package models

import (
	"testing"
	"time"
)

func TestTimeframeMinutes(t *testing.T) {
	cases := map[Timeframe]int{
		TimeframeM1:  1,
		TimeframeM5:  5,
		TimeframeM15: 15,
		TimeframeM30: 30,
		TimeframeH1:  60,
		TimeframeH4:  240,
		TimeframeD1:  1440,
	}
	for tf, want := range cases {
		if got := tf.Minutes(); got != want {
			t.Errorf("%s.Minutes() = %d, want %d", tf, got, want)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("H4")
	if err != nil {
		t.Fatalf("ParseTimeframe(H4) returned error: %v", err)
	}
	if tf != TimeframeH4 {
		t.Errorf("ParseTimeframe(H4) = %s", tf)
	}

	for _, bad := range []string{"", "M2", "W1", "MN1", "h1"} {
		if _, err := ParseTimeframe(bad); err == nil {
			t.Errorf("ParseTimeframe(%q) should fail", bad)
		}
	}
}

func TestTimeframeOrdering(t *testing.T) {
	tfs := Timeframes()
	for i := 1; i < len(tfs); i++ {
		if !tfs[i].Coarser(tfs[i-1]) {
			t.Errorf("%s should be coarser than %s", tfs[i], tfs[i-1])
		}
		if !tfs[i-1].Finer(tfs[i]) {
			t.Errorf("%s should be finer than %s", tfs[i-1], tfs[i])
		}
	}
	// Every timeframe is an integer multiple of M1.
	for _, tf := range tfs {
		if tf.Minutes()%TimeframeM1.Minutes() != 0 {
			t.Errorf("%s is not a multiple of M1", tf)
		}
	}
}

func TestSeriesAligned(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	s := &Series{Symbol: "EURUSD", Timeframe: TimeframeM5}
	for i := 0; i < 4; i++ {
		s.Bars = append(s.Bars, Bar{Time: base.Add(time.Duration(i) * 5 * time.Minute)})
	}
	if !s.Aligned() {
		t.Error("contiguous M5 series should be aligned")
	}

	// Gaps are fine as long as timestamps stay on the grid.
	gapped := &Series{Symbol: "EURUSD", Timeframe: TimeframeM5, Bars: []Bar{
		{Time: base},
		{Time: base.Add(15 * time.Minute)},
	}}
	if !gapped.Aligned() {
		t.Error("gapped on-grid series should be aligned")
	}

	offGrid := &Series{Symbol: "EURUSD", Timeframe: TimeframeM5, Bars: []Bar{
		{Time: base.Add(2 * time.Minute)},
	}}
	if offGrid.Aligned() {
		t.Error("off-grid timestamp should not be aligned")
	}

	unordered := &Series{Symbol: "EURUSD", Timeframe: TimeframeM5, Bars: []Bar{
		{Time: base.Add(5 * time.Minute)},
		{Time: base},
	}}
	if unordered.Aligned() {
		t.Error("non-increasing timestamps should not be aligned")
	}
}

func TestTradeRecordDedupKey(t *testing.T) {
	entry := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	exit := entry.Add(time.Hour)
	a := TradeRecord{Symbol: "EURUSD", StrategyName: "s1", EntryTime: entry, ExitTime: exit}
	b := TradeRecord{Symbol: "EURUSD", StrategyName: "s1", EntryTime: entry, ExitTime: exit, PnL: 42}
	if a.DedupKey() != b.DedupKey() {
		t.Error("records differing only in PnL must share a dedup key")
	}
	c := TradeRecord{Symbol: "EURUSD", StrategyName: "s2", EntryTime: entry, ExitTime: exit}
	if a.DedupKey() == c.DedupKey() {
		t.Error("records for different strategies must not share a dedup key")
	}
}
