package mapping

import "testing"

func TestMatchPresets(t *testing.T) {
	presets := []Preset{
		{ID: "bank", Name: "Bank export", Headers: []string{"Txn Date", "Desc", "Amt"}},
		{ID: "card", Name: "Card export", Headers: []string{"Posted", "Merchant", "Amount", "Category"}},
		{ID: "empty", Name: "No headers"},
	}

	tests := []struct {
		name    string
		headers []string
		wantIDs []string
	}{
		{
			name:    "exact match",
			headers: []string{"Txn Date", "Desc", "Amt"},
			wantIDs: []string{"bank"},
		},
		{
			name:    "normalized match",
			headers: []string{"txn_date", "DESC", "amt", "Balance"},
			wantIDs: []string{"bank"},
		},
		{
			name:    "three of four clears threshold",
			headers: []string{"Posted", "Merchant", "Amount"},
			wantIDs: []string{"card"},
		},
		{
			name:    "half is below threshold",
			headers: []string{"Posted", "Merchant"},
			wantIDs: nil,
		},
		{
			name:    "best first",
			headers: []string{"Txn Date", "Desc", "Amt", "Posted", "Merchant", "Amount"},
			wantIDs: []string{"bank", "card"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchPresets(tt.headers, presets)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("MatchPresets() = %d matches, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].Preset.ID != id {
					t.Errorf("match[%d] = %s, want %s", i, got[i].Preset.ID, id)
				}
			}
		})
	}
}
