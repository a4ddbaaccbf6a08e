package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio_Identical(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("immunization outreach", "immunization outreach"))
}

func TestRatio_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("", "program"))
}

func TestRatio_Disjoint(t *testing.T) {
	assert.Less(t, Ratio("abc", "xyz"), 0.5)
}

func TestTokenSetRatio_SubsetScoresOne(t *testing.T) {
	// The extra trailing token does not penalize the shared core.
	score := TokenSetRatio("immunization outreach", "immunization outreach program")
	assert.Equal(t, 1.0, score)
}

func TestTokenSetRatio_OrderInsensitive(t *testing.T) {
	score := TokenSetRatio("outreach immunization", "immunization outreach")
	assert.Equal(t, 1.0, score)
}

func TestTokenSetRatio_DuplicateTokensIgnored(t *testing.T) {
	score := TokenSetRatio("health health services", "services health")
	assert.Equal(t, 1.0, score)
}

func TestTokenSetRatio_Empty(t *testing.T) {
	assert.Equal(t, 0.0, TokenSetRatio("", "program"))
	assert.Equal(t, 0.0, TokenSetRatio("", ""))
}

func TestTokenSetRatio_SimilarButNotEqual(t *testing.T) {
	score := TokenSetRatio("financial assistance for education", "financial assistance for educational")
	assert.Greater(t, score, 0.88)
	assert.Less(t, score, 1.0)
}

func TestTokenSetRatio_DifferentPrograms(t *testing.T) {
	score := TokenSetRatio("highway construction", "medicaid eligibility determination")
	assert.Less(t, score, 0.5)
}
