package merge

import (
	"stockpile/internal/inventory"
)

// Stats describes one merge run.
type Stats struct {
	Input     int
	Output    int
	Collapsed int
	Unnamed   int
}

// Merge returns one detection per distinct normalized name, in the order each
// name was first seen. Detections whose name normalizes to nothing are dropped.
func Merge(detections []inventory.Detection) ([]inventory.Detection, Stats) {
	stats := Stats{Input: len(detections)}
	groups := make(map[string][]int)
	var order []string
	for i, d := range detections {
		key := d.Key()
		if key == "" {
			stats.Unnamed++
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	out := make([]inventory.Detection, 0, len(order))
	for _, key := range order {
		members := groups[key]
		winner := members[0]
		for _, idx := range members[1:] {
			if outranks(detections[idx], detections[winner]) {
				winner = idx
			}
		}
		survivor := detections[winner]
		survivor.Candidate = survivor.Clone()
		for _, idx := range members {
			if idx != winner {
				backfill(&survivor.Candidate, detections[idx].Candidate)
			}
		}
		out = append(out, survivor)
		stats.Collapsed += len(members) - 1
	}
	stats.Output = len(out)
	return out, stats
}

// Candidates strips detection tags.
func Candidates(detections []inventory.Detection) []inventory.Candidate {
	out := make([]inventory.Candidate, len(detections))
	for i, d := range detections {
		out[i] = d.Candidate
	}
	return out
}

// outranks reports whether a strictly beats b. Ties keep the earlier one.
func outranks(a, b inventory.Detection) bool {
	return rank(a) < rank(b)
}

func rank(d inventory.Detection) int {
	r := 0
	if d.Generic {
		r += 2
	}
	if d.Category.IsEmpty() {
		r++
	}
	return r
}

func backfill(dst *inventory.Candidate, src inventory.Candidate) {
	if dst.ExternalID == "" && src.ExternalID != "" && src.Origin == dst.Origin {
		dst.ExternalID = src.ExternalID
	}
	if dst.Category.IsEmpty() {
		dst.Category = src.Category
	}
	if dst.InstallPath == "" {
		dst.InstallPath = src.InstallPath
	}
	if dst.ExecutablePath == "" {
		dst.ExecutablePath = src.ExecutablePath
	}
	if dst.IconHint == "" {
		dst.IconHint = src.IconHint
	}
	if dst.Version == "" {
		dst.Version = src.Version
	}
	if dst.InstallTime.IsZero() {
		dst.InstallTime = src.InstallTime
	}
	dst.AbsorbAttributes(src.Attributes)
}
