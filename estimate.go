package gengate

import "strings"

// EstimateTokens provides a rough token count for prompt segments,
// using the approximation of ~4 characters per token. Empty segments
// are ignored; a non-empty input always estimates at least one token.
// The gate never computes estimates itself; this is a convenience for
// callers building Request.EstimatedTokens.
func EstimateTokens(segments ...string) int64 {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	combined := strings.Join(parts, " ")
	if combined == "" {
		return 0
	}
	estimated := int64(len(combined)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
