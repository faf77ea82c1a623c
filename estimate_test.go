package gengate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/catalystlabs/gengate"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), gengate.EstimateTokens())
	assert.Equal(t, int64(0), gengate.EstimateTokens("", ""))

	// Tiny but non-empty input still counts for something.
	assert.Equal(t, int64(1), gengate.EstimateTokens("hi"))

	// ~4 characters per token.
	assert.Equal(t, int64(100), gengate.EstimateTokens(strings.Repeat("a", 400)))

	// Segments are joined with a separator before counting.
	a := strings.Repeat("a", 40)
	b := strings.Repeat("b", 39)
	assert.Equal(t, int64(20), gengate.EstimateTokens(a, b))

	// Empty segments contribute nothing.
	assert.Equal(t, gengate.EstimateTokens(a), gengate.EstimateTokens("", a, ""))
}
