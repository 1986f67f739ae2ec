package services

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BradenHooton/quizgate/internal/models"
)

// Dimensions are the personality dimensions scored by the quiz
var Dimensions = []string{
	"egoism",
	"greed",
	"mach",
	"moral",
	"narcissism",
	"power",
	"psychopathy",
	"sadism",
	"selfcentered",
	"spitefulness",
}

const (
	rankingMean   = 20.0
	rankingStdDev = 5.0
)

// Missing-field policies
const (
	MissingPolicyReject = "reject"
	MissingPolicyZero   = "zero"
)

// RankingService converts raw dimension scores into percentiles
type RankingService struct {
	missingPolicy string
}

// NewRankingService creates a ranking service with the given missing-field
// policy; anything other than MissingPolicyZero rejects
func NewRankingService(missingPolicy string) *RankingService {
	return &RankingService{missingPolicy: missingPolicy}
}

// Percentile maps a raw score onto 0-100 with a tanh approximation of the
// normal CDF (mean 20, sd 5). Clients compute the same curve, so the formula
// must not be swapped for an exact CDF.
func Percentile(score float64) int {
	z := (score - rankingMean) / rankingStdDev
	p := math.Round(100 * 0.5 * (1 + math.Tanh(z/math.Sqrt2)))
	return int(math.Max(0, math.Min(100, p)))
}

// Rank computes a percentile for every dimension. Under the reject policy any
// missing, non-numeric or unknown field fails with models.ErrBadRequest;
// under the zero policy missing and non-numeric fields score 0 and unknown
// fields are ignored.
func (s *RankingService) Rank(scores map[string]json.RawMessage) (map[string]int, error) {
	reject := s.missingPolicy != MissingPolicyZero

	var missing, invalid, unknown []string
	if reject {
		known := make(map[string]bool, len(Dimensions))
		for _, d := range Dimensions {
			known[d] = true
		}
		for key := range scores {
			if !known[key] {
				unknown = append(unknown, key)
			}
		}
	}

	out := make(map[string]int, len(Dimensions))
	for _, dim := range Dimensions {
		raw, ok := scores[dim]
		if !ok {
			missing = append(missing, dim)
			out[dim] = Percentile(0)
			continue
		}

		score, ok := parseScore(raw)
		if !ok {
			invalid = append(invalid, dim)
			score = 0
		}
		out[dim] = Percentile(score)
	}

	if reject && len(missing)+len(invalid)+len(unknown) > 0 {
		return nil, rankingError(missing, invalid, unknown)
	}
	return out, nil
}

func parseScore(raw json.RawMessage) (float64, bool) {
	if strings.TrimSpace(string(raw)) == "null" {
		return 0, false
	}
	var score float64
	if err := json.Unmarshal(raw, &score); err != nil {
		return 0, false
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}

func rankingError(missing, invalid, unknown []string) error {
	var parts []string
	for _, group := range []struct {
		label  string
		fields []string
	}{
		{"missing", missing},
		{"non-numeric", invalid},
		{"unknown", unknown},
	} {
		if len(group.fields) == 0 {
			continue
		}
		sort.Strings(group.fields)
		parts = append(parts, group.label+": "+strings.Join(group.fields, ", "))
	}
	return fmt.Errorf("%w: %s", models.ErrBadRequest, strings.Join(parts, "; "))
}
