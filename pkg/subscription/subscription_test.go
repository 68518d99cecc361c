package subscription

import (
	"sync"
	"testing"

	"github.com/indiproto/indi-go/pkg/wire"
)

func TestWatchListUnwatchedDeviceIsInteresting(t *testing.T) {
	w := NewWatchList()

	if !w.InterestedIn("CCD", "EXPOSURE") {
		t.Error("InterestedIn() = false for unwatched device, want true")
	}
	if !w.Empty() {
		t.Error("Empty() = false, want true")
	}
}

func TestWatchListWatchProperty(t *testing.T) {
	w := NewWatchList()
	w.Watch("CCD", "EXPOSURE")
	w.Watch("CCD", "TEMPERATURE")

	if !w.InterestedIn("CCD", "EXPOSURE") {
		t.Error("InterestedIn(CCD, EXPOSURE) = false, want true")
	}
	if !w.InterestedIn("CCD", "TEMPERATURE") {
		t.Error("InterestedIn(CCD, TEMPERATURE) = false, want true")
	}
	if w.InterestedIn("CCD", "GAIN") {
		t.Error("InterestedIn(CCD, GAIN) = true, want false")
	}
	// Other devices are unaffected.
	if !w.InterestedIn("Mount", "GAIN") {
		t.Error("InterestedIn(Mount, GAIN) = false, want true")
	}
}

func TestWatchListWatchDevice(t *testing.T) {
	w := NewWatchList()
	w.WatchDevice("Mount")

	if !w.IsWatched("Mount") {
		t.Error("IsWatched(Mount) = false, want true")
	}
	if !w.InterestedIn("Mount", "ANYTHING") {
		t.Error("empty set should mean all properties")
	}

	entries := w.Entries()
	if len(entries) != 1 || entries[0].Device != "Mount" || len(entries[0].Properties) != 0 {
		t.Errorf("Entries() = %+v, want one empty Mount entry", entries)
	}
}

func TestWatchListSequences(t *testing.T) {
	calls := [][2]string{
		{"A", "p1"}, {"B", "q1"}, {"A", "p2"}, {"A", "p1"},
	}
	w := NewWatchList()
	for _, c := range calls {
		w.Watch(c[0], c[1])
	}
	for _, c := range calls {
		if !w.InterestedIn(c[0], c[1]) {
			t.Errorf("InterestedIn(%s, %s) = false after Watch", c[0], c[1])
		}
	}
	if w.InterestedIn("A", "other") {
		t.Error("InterestedIn(A, other) = true, want false")
	}
	if !w.InterestedIn("C", "other") {
		t.Error("InterestedIn(C, other) = false for unwatched device")
	}

	entries := w.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Device != "A" || len(entries[0].Properties) != 2 {
		t.Errorf("Entries()[0] = %+v", entries[0])
	}
	if entries[0].Properties[0] != "p1" || entries[0].Properties[1] != "p2" {
		t.Errorf("properties not sorted: %v", entries[0].Properties)
	}
}

func TestWatchListClear(t *testing.T) {
	w := NewWatchList()
	w.Watch("CCD", "EXPOSURE")
	w.Clear()

	if !w.Empty() {
		t.Error("Empty() = false after Clear")
	}
	if !w.InterestedIn("CCD", "GAIN") {
		t.Error("InterestedIn() = false after Clear")
	}
}

func TestBLOBModesPrecedence(t *testing.T) {
	b := NewBLOBModes()
	b.Set("cam", "", wire.BLOBAlso)
	b.Set("cam", "img", wire.BLOBNever)

	if mode, ok := b.Lookup("cam", "img"); !ok || mode != wire.BLOBNever {
		t.Errorf("Lookup(cam, img) = %v, %v; want Never, true", mode, ok)
	}
	if mode, ok := b.Lookup("cam", "other"); !ok || mode != wire.BLOBAlso {
		t.Errorf("Lookup(cam, other) = %v, %v; want Also, true", mode, ok)
	}
	if _, ok := b.Lookup("mount", "img"); ok {
		t.Error("Lookup(mount, img) found an entry, want none")
	}
}

func TestBLOBModesUpsert(t *testing.T) {
	b := NewBLOBModes()
	b.Set("cam", "img", wire.BLOBAlso)
	b.Set("cam", "img", wire.BLOBOnly)

	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	if mode, _ := b.Lookup("cam", "img"); mode != wire.BLOBOnly {
		t.Errorf("Lookup() = %v, want Only", mode)
	}
}

func TestBLOBModesEntriesOrder(t *testing.T) {
	b := NewBLOBModes()
	b.Set("zeta", "", wire.BLOBAlso)
	b.Set("cam", "img", wire.BLOBOnly)
	b.Set("cam", "", wire.BLOBNever)

	entries := b.Entries()
	want := []BLOBEntry{
		{Device: "cam", Property: "", Mode: wire.BLOBNever},
		{Device: "cam", Property: "img", Mode: wire.BLOBOnly},
		{Device: "zeta", Property: "", Mode: wire.BLOBAlso},
	}
	if len(entries) != len(want) {
		t.Fatalf("len(Entries()) = %d, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("Entries()[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}

	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", b.Len())
	}
}

func TestConcurrentMutation(t *testing.T) {
	w := NewWatchList()
	b := NewBLOBModes()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.Watch("CCD", "EXPOSURE")
				b.Set("CCD", "", wire.BLOBAlso)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = w.InterestedIn("CCD", "EXPOSURE")
				_, _ = b.Lookup("CCD", "CCD1")
				_ = w.Entries()
			}
		}()
	}
	wg.Wait()

	if !w.InterestedIn("CCD", "EXPOSURE") {
		t.Error("InterestedIn() = false after concurrent Watch")
	}
}
