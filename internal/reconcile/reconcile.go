// Package reconcile merges a freshly scanned target list into an existing
// response mapping without losing prior answers.
package reconcile

import (
	"sort"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// Delta describes how a rescan changed the response domain
type Delta struct {
	Previous int // responses before reconciliation
	Current  int // targets in the new scan
	Added    int // indices that received a default response
	Removed  int // existing indices beyond the new target count
	// Misaligned lists indices whose recorded target key no longer matches
	// the target found at that position.
	Misaligned []int
}

// Changed reports whether the rescan altered anything
func (d Delta) Changed() bool {
	return d.Added > 0 || d.Removed > 0 || len(d.Misaligned) > 0
}

// Reconcile extends existing with a default response for every index of
// targets that has none. Existing entries are copied unchanged and are never
// removed or renumbered, even when they fall beyond the new target count.
func Reconcile(existing map[int]models.Response, targets []models.Target) (map[int]models.Response, Delta) {
	result := make(map[int]models.Response, max(len(existing), len(targets)))
	for idx, r := range existing {
		result[idx] = r
	}

	delta := Delta{Previous: len(existing), Current: len(targets)}
	for i, t := range targets {
		r, ok := existing[i]
		if !ok {
			result[i] = models.DefaultResponse(t.Key())
			delta.Added++
			continue
		}
		if r.TargetKey != "" && r.TargetKey != t.Key() {
			delta.Misaligned = append(delta.Misaligned, i)
		}
	}

	for idx := range existing {
		if idx >= len(targets) {
			delta.Removed++
		}
	}

	return result, delta
}

// Realign rebuilds the mapping so each keyed response follows its target to
// the target's new index. Responses written without a key keep their index.
// Responses left without a target are kept at indices past the target count,
// in their previous order, so a target that reappears on a later rescan gets
// its answer back. The second result counts those kept responses.
func Realign(existing map[int]models.Response, targets []models.Target) (map[int]models.Response, int) {
	byKey := make(map[string]int, len(existing))
	for _, idx := range Indices(existing) {
		if key := existing[idx].TargetKey; key != "" {
			if _, seen := byKey[key]; !seen {
				byKey[key] = idx
			}
		}
	}

	result := make(map[int]models.Response, max(len(existing), len(targets)))
	placed := make(map[int]bool, len(existing))
	for i, t := range targets {
		key := t.Key()
		if idx, ok := byKey[key]; ok {
			result[i] = existing[idx]
			placed[idx] = true
			continue
		}
		if r, ok := existing[i]; ok && r.TargetKey == "" && !placed[i] {
			r.TargetKey = key
			result[i] = r
			placed[i] = true
			continue
		}
		result[i] = models.DefaultResponse(key)
	}

	next := len(targets)
	for _, idx := range Indices(existing) {
		if placed[idx] {
			continue
		}
		result[next] = existing[idx]
		next++
	}
	return result, next - len(targets)
}

// Indices returns the keys of a response mapping in ascending order
func Indices(responses map[int]models.Response) []int {
	indices := make([]int, 0, len(responses))
	for idx := range responses {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}
