package calendar

import (
	"sort"
	"time"

	"taskbot/internal/domain"
)

const (
	searchWindow    = 4 * time.Hour
	slotStep        = 30 * time.Minute
	maxAlternatives = 3
)

// suggestAlternatives scans outward from the requested slot in 30-minute
// steps and returns up to max free slots of the same length, nearest
// first. Slots in the past are skipped.
func suggestAlternatives(requested domain.TimeRange, busy []domain.TimeRange, max int) []domain.TimeRange {
	length := requested.End.Sub(requested.Start)
	if length <= 0 || max <= 0 {
		return nil
	}

	type candidate struct {
		slot domain.TimeRange
		dist time.Duration
	}
	var candidates []candidate

	for offset := slotStep; offset <= searchWindow; offset += slotStep {
		for _, dir := range []time.Duration{offset, -offset} {
			start := requested.Start.Add(dir)
			if start.Before(time.Now()) {
				continue
			}
			slot := domain.TimeRange{Start: start, End: start.Add(length)}
			if isFree(slot, busy) {
				dist := dir
				if dist < 0 {
					dist = -dist
				}
				candidates = append(candidates, candidate{slot: slot, dist: dist})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	var out []domain.TimeRange
	for _, c := range candidates {
		out = append(out, c.slot)
		if len(out) == max {
			break
		}
	}
	return out
}

func isFree(slot domain.TimeRange, busy []domain.TimeRange) bool {
	for _, b := range busy {
		if overlaps(slot, b) {
			return false
		}
	}
	return true
}
