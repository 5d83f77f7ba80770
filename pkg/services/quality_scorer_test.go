package services

import "testing"

func TestScoreQuality(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		data       map[string]any
		want       int
	}{
		{
			name:       "all required fields present",
			entityType: "company",
			data: map[string]any{
				"name":    "Acme Corp",
				"email":   "info@acme.example",
				"phone":   "+1-555-0100",
				"address": "1 Main St",
			},
			want: 100,
		},
		{
			name:       "half of required fields present",
			entityType: "company",
			data: map[string]any{
				"name":  "Acme Corp",
				"email": "info@acme.example",
			},
			want: 50,
		},
		{
			name:       "empty string does not count as present",
			entityType: "company",
			data: map[string]any{
				"name":    "Acme Corp",
				"email":   "",
				"phone":   nil,
				"address": "1 Main St",
			},
			want: 50,
		},
		{
			name:       "zero and false count as present",
			entityType: "product",
			data: map[string]any{
				"name":  "Widget",
				"sku":   "W-0",
				"price": 0,
			},
			want: 100,
		},
		{
			name:       "no data",
			entityType: "person",
			data:       map[string]any{},
			want:       0,
		},
		{
			name:       "unknown entity type scores full",
			entityType: "spaceship",
			data:       map[string]any{},
			want:       100,
		},
		{
			name:       "one of three rounds to nearest",
			entityType: "person",
			data: map[string]any{
				"first_name": "Ada",
			},
			want: 33,
		},
		{
			name:       "extra fields do not change the score",
			entityType: "person",
			data: map[string]any{
				"first_name": "Ada",
				"last_name":  "Lovelace",
				"email":      "ada@example.com",
				"nickname":   "unrelated",
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreQuality(tt.entityType, tt.data)
			if got != tt.want {
				t.Errorf("ScoreQuality(%q) = %d, want %d", tt.entityType, got, tt.want)
			}
		})
	}
}

func TestScoreQualityDeterministic(t *testing.T) {
	data := map[string]any{
		"name":  "Acme Corp",
		"email": "info@acme.example",
	}
	first := ScoreQuality("company", data)
	for i := 0; i < 10; i++ {
		if got := ScoreQuality("company", data); got != first {
			t.Fatalf("ScoreQuality not deterministic: got %d then %d", first, got)
		}
	}
}
