package dedup

import (
	"fmt"

	"casas_scrooper/models"
)

// Stats summarizes a batch that went from original to deduplicated listings.
func Stats(original, deduplicated int) models.DedupStats {
	removed := original - deduplicated
	rate := 0.0
	if original > 0 {
		rate = float64(removed) * 100 / float64(original)
	}
	return models.DedupStats{
		Original:          original,
		Deduplicated:      deduplicated,
		DuplicatesRemoved: removed,
		RatePercent:       rate,
		DeduplicationRate: fmt.Sprintf("%.1f%%", rate),
	}
}
