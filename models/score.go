package models

// ScoreBreakdown holds the per-signal similarity sub-scores, each in [0,1]
type ScoreBreakdown struct {
	Price      float64 `json:"price"`
	Location   float64 `json:"location"`
	Attributes float64 `json:"attributes"`
	Title      float64 `json:"title"`
}

// SimilarityScore is the weighted combination of a ScoreBreakdown
type SimilarityScore struct {
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// DedupStats summarizes one deduplication batch
type DedupStats struct {
	Original          int     `json:"original"`
	Deduplicated      int     `json:"deduplicated"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	RatePercent       float64 `json:"-"`
	DeduplicationRate string  `json:"deduplication_rate"` // "20.0%"
}
