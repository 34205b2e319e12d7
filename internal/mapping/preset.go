package mapping

import (
	"sort"
	"time"
)

// PresetMatchThreshold is the minimum header overlap for a preset to be suggested.
const PresetMatchThreshold = 0.7

// Preset is a saved mapping for a recurring export layout.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Headers   []string  `json:"headers"`
	Mapping   Mapping   `json:"mapping"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PresetMatch is a preset scored against a file's headers.
type PresetMatch struct {
	Preset Preset  `json:"preset"`
	Score  float64 `json:"score"`
}

// MatchPresets scores presets by the share of their headers present in
// headers and returns those at or above PresetMatchThreshold, best first.
func MatchPresets(headers []string, presets []Preset) []PresetMatch {
	var matches []PresetMatch
	for _, p := range presets {
		score := headerOverlap(headers, p.Headers)
		if score >= PresetMatchThreshold {
			matches = append(matches, PresetMatch{Preset: p, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// headerOverlap compares normalized headers so "Txn Date" matches "txn_date".
func headerOverlap(headers, presetHeaders []string) float64 {
	if len(presetHeaders) == 0 {
		return 0
	}

	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[NormalizeHeader(h)] = true
	}

	matched := 0
	for _, h := range presetHeaders {
		if have[NormalizeHeader(h)] {
			matched++
		}
	}
	return float64(matched) / float64(len(presetHeaders))
}
