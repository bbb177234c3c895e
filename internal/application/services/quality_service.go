package services

import (
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// QualityService computes completeness and validity metrics per source
// batch. Scoring is deterministic and order-independent; it has no side
// effects beyond the returned metric structure.
type QualityService struct {
	completenessWeight float64
	validityWeight     float64
}

// NewQualityService creates a quality scorer. Weights are normalized so
// the score stays within [0,1] whatever the caller supplies; non-positive
// weight pairs fall back to an even split.
func NewQualityService(completenessWeight, validityWeight float64) *QualityService {
	if completenessWeight < 0 {
		completenessWeight = 0
	}
	if validityWeight < 0 {
		validityWeight = 0
	}
	if completenessWeight+validityWeight == 0 {
		completenessWeight, validityWeight = 0.5, 0.5
	}
	sum := completenessWeight + validityWeight
	return &QualityService{
		completenessWeight: completenessWeight / sum,
		validityWeight:     validityWeight / sum,
	}
}

// Score computes the batch quality for one source's validated records.
// An empty batch yields the defined sentinel (Empty=true, Score=1) rather
// than a division error.
func (s *QualityService) Score(records []entities.ValidatedRecord) entities.BatchQuality {
	if len(records) == 0 {
		return entities.BatchQuality{
			Empty:             true,
			Score:             1,
			ValidityRate:      1,
			MeanCompleteness:  1,
			FieldCompleteness: map[string]float64{},
		}
	}

	nonEmpty := make(map[string]int)
	seen := make(map[string]struct{})
	valid := 0
	for _, record := range records {
		if record.Valid {
			valid++
		}
		for field, value := range record.Raw.Fields {
			seen[field] = struct{}{}
			if value != "" {
				nonEmpty[field]++
			}
		}
	}

	total := float64(len(records))
	completeness := make(map[string]float64, len(seen))
	var completenessSum float64
	for field := range seen {
		ratio := float64(nonEmpty[field]) / total
		completeness[field] = ratio
		completenessSum += ratio
	}

	meanCompleteness := 1.0
	if len(completeness) > 0 {
		meanCompleteness = completenessSum / float64(len(completeness))
	}
	validityRate := float64(valid) / total

	return entities.BatchQuality{
		Score:             s.completenessWeight*meanCompleteness + s.validityWeight*validityRate,
		ValidityRate:      validityRate,
		MeanCompleteness:  meanCompleteness,
		FieldCompleteness: completeness,
	}
}
