package subscription

import (
	"sort"
	"sync"
)

// WatchEntry is one device of the watch list.
type WatchEntry struct {
	Device string

	// Properties is sorted. Empty means every property of the device.
	Properties []string
}

// WatchList maps device names to the set of properties of interest.
type WatchList struct {
	mu      sync.RWMutex
	devices map[string]map[string]struct{}
}

// NewWatchList creates an empty watch list.
func NewWatchList() *WatchList {
	return &WatchList{
		devices: make(map[string]map[string]struct{}),
	}
}

// Watch adds property to the interest set of device, creating the set if needed.
func (w *WatchList) Watch(device, property string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set, ok := w.devices[device]
	if !ok {
		set = make(map[string]struct{})
		w.devices[device] = set
	}
	if property != "" {
		set[property] = struct{}{}
	}
}

// WatchDevice declares interest in every property of device. An existing
// property set for the device is kept.
func (w *WatchList) WatchDevice(device string) {
	w.Watch(device, "")
}

// InterestedIn reports whether updates for (device, property) should be
// processed. It is true when the device has no entry, an empty set, or a
// set containing property.
func (w *WatchList) InterestedIn(device, property string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	set, ok := w.devices[device]
	if !ok || len(set) == 0 {
		return true
	}
	_, ok = set[property]
	return ok
}

// IsWatched reports whether device has an entry in the list.
func (w *WatchList) IsWatched(device string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.devices[device]
	return ok
}

// Empty reports whether nothing has been watched.
func (w *WatchList) Empty() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.devices) == 0
}

// Entries returns a snapshot sorted by device name.
func (w *WatchList) Entries() []WatchEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]WatchEntry, 0, len(w.devices))
	for device, set := range w.devices {
		entry := WatchEntry{Device: device}
		for property := range set {
			entry.Properties = append(entry.Properties, property)
		}
		sort.Strings(entry.Properties)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Clear removes every entry.
func (w *WatchList) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.devices = make(map[string]map[string]struct{})
}
