package subscription

import (
	"sort"
	"sync"

	"github.com/indiproto/indi-go/pkg/wire"
)

// BLOBEntry is one recorded enableBLOB policy.
type BLOBEntry struct {
	Device   string
	Property string
	Mode     wire.BLOBHandling
}

type blobKey struct {
	device   string
	property string
}

// BLOBModes is the per (device, property) BLOB delivery table.
type BLOBModes struct {
	mu    sync.RWMutex
	modes map[blobKey]wire.BLOBHandling
}

// NewBLOBModes creates an empty table.
func NewBLOBModes() *BLOBModes {
	return &BLOBModes{
		modes: make(map[blobKey]wire.BLOBHandling),
	}
}

// Set records mode for (device, property), replacing any earlier entry.
// An empty property sets the device default.
func (b *BLOBModes) Set(device, property string, mode wire.BLOBHandling) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modes[blobKey{device, property}] = mode
}

// Lookup returns the mode for (device, property), falling back to the
// device default. ok is false when neither is recorded.
func (b *BLOBModes) Lookup(device, property string) (mode wire.BLOBHandling, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if mode, ok = b.modes[blobKey{device, property}]; ok {
		return mode, true
	}
	mode, ok = b.modes[blobKey{device, ""}]
	return mode, ok
}

// Entries returns a snapshot sorted by device, then property. Device
// defaults sort before property entries of the same device.
func (b *BLOBModes) Entries() []BLOBEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BLOBEntry, 0, len(b.modes))
	for k, mode := range b.modes {
		out = append(out, BLOBEntry{Device: k.device, Property: k.property, Mode: mode})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Device != out[j].Device {
			return out[i].Device < out[j].Device
		}
		return out[i].Property < out[j].Property
	})
	return out
}

// Len returns the number of entries.
func (b *BLOBModes) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.modes)
}

// Clear removes every entry.
func (b *BLOBModes) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modes = make(map[blobKey]wire.BLOBHandling)
}
