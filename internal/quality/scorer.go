// Package quality scores records for compression ranking. The score is a
// pure function of the record and the clock passed in; it never influences
// admission, only how candidates are ranked when the token budget is tight.
package quality

import (
	"math"
	"strings"
	"time"

	"github.com/memkeep/memkeep/internal/models"
)

// Policy holds the tunable weights. Defaults are reasonable for coding
// session transcripts; the only hard requirement is that the score responds
// monotonically to each input in isolation.
type Policy struct {
	// SaturationLength is the content length (bytes) past which additional
	// length stops increasing the score.
	SaturationLength int
	// HalfLife controls the exponential recency decay.
	HalfLife time.Duration
	// Base, LengthWeight, StructureBonus, and TopicBonus combine into the
	// pre-role score; their sum should be 1.0 so the score stays in [0,1].
	Base           float64
	LengthWeight   float64
	StructureBonus float64
	TopicBonus     float64
	// RoleWeights maps record kinds to multipliers in (0,1].
	RoleWeights map[models.Kind]float64
}

// DefaultPolicy returns the standard weighting: user input outranks
// assistant output, which outranks raw tool output; knowledge records sit
// near the top since they are already distilled.
func DefaultPolicy() Policy {
	return Policy{
		SaturationLength: 800,
		HalfLife:         7 * 24 * time.Hour,
		Base:             0.15,
		LengthWeight:     0.55,
		StructureBonus:   0.20,
		TopicBonus:       0.10,
		RoleWeights: map[models.Kind]float64{
			models.KindUserMessage:      1.0,
			models.KindAssistantMessage: 0.85,
			models.KindToolUse:          0.60,
			models.KindDecision:         1.0,
			models.KindConvention:       0.95,
			models.KindLearning:         0.95,
			models.KindArtifact:         0.80,
			models.KindLegacy:           0.50,
		},
	}
}

// Scorer produces a [0,1] retention priority per record.
type Scorer struct {
	policy Policy
}

func New(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Score computes the priority of a record at the given instant.
func (s *Scorer) Score(r *models.Record, now time.Time) float64 {
	p := s.policy

	length := float64(len(r.Content))
	sat := float64(p.SaturationLength)
	lengthScore := length / sat
	if lengthScore > 1 {
		lengthScore = 1
	}

	structure := 0.0
	if hasStructure(r.Content) {
		structure = 1.0
	}

	topics := 0.0
	if len(r.Topics) > 0 {
		topics = 1.0
	}

	base := p.Base + p.LengthWeight*lengthScore + p.StructureBonus*structure + p.TopicBonus*topics

	role, ok := p.RoleWeights[r.Kind]
	if !ok {
		role = 0.5
	}

	age := now.Sub(time.Unix(r.CreatedAt, 0))
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-age.Hours() / p.HalfLife.Hours())

	score := base * role * recency
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// hasStructure detects code-block-like or list-like formatting.
func hasStructure(content string) bool {
	if strings.Contains(content, "```") {
		return true
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "1. ") {
			return true
		}
	}
	return false
}
