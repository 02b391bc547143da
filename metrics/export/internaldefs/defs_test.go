package internaldefs

import (
	"strings"
	"testing"

	identity "github.com/MrEthical07/goIdentity"
)

func TestCounterDefsUnique(t *testing.T) {
	ids := map[identity.MetricID]bool{}
	names := map[string]bool{}
	for _, d := range CounterDefs {
		if ids[d.ID] || names[d.Name] {
			t.Fatalf("duplicate counter %s", d.Name)
		}
		if !strings.HasSuffix(d.Name, "_total") {
			t.Fatalf("counter %s should end in _total", d.Name)
		}
		ids[d.ID] = true
		names[d.Name] = true
	}
	if ids[identity.MetricAuthenticateLatency] {
		t.Fatalf("the latency histogram is not a counter")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(HistogramBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatalf("every bound needs a suffix plus one for +Inf")
	}
}
