package services

import (
	"math"

	"github.com/mdmkit/reconcile-engine/pkg/jsonutil"
	"github.com/mdmkit/reconcile-engine/pkg/schemas"
)

// ScoreQuality computes a record's completeness score from 0 to 100: the
// rounded percentage of the entity type's required fields that are present
// and non-empty. Entity types without a configured schema score 100.
func ScoreQuality(entityType string, data map[string]any) int {
	required := schemas.RequiredFields(entityType)
	if len(required) == 0 {
		return 100
	}

	present := 0
	for _, field := range required {
		v, ok := data[field]
		if ok && !jsonutil.IsEmpty(v) {
			present++
		}
	}

	return int(math.Round(100 * float64(present) / float64(len(required))))
}
