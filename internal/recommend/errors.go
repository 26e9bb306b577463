package recommend

import (
	"errors"
	"fmt"
)

// User-facing messages for the two non-success outcomes.
const (
	MessageNoMatches = "Could not find any matching recommendations. Please try adjusting your preferences."
	MessageFailed    = "An unexpected error occurred while fetching recommendations."
)

var (
	// ErrNoMatches means ranking succeeded but nothing joined to the catalog.
	ErrNoMatches = errors.New("no matching recommendations")
	// ErrRecommendationFailed wraps every ranking service failure.
	ErrRecommendationFailed = errors.New("recommendation failed")
)

// EmptyResultError reports an empty joined result. It matches ErrNoMatches.
type EmptyResultError struct {
	// Ranked is how many entries the ranking call returned before the join.
	Ranked int
}

func (e *EmptyResultError) Error() string {
	if e.Ranked == 0 {
		return "no matching recommendations: ranking returned nothing"
	}
	return fmt.Sprintf("no matching recommendations: none of %d ranked titles are in the catalog", e.Ranked)
}

// Is lets errors.Is(err, ErrNoMatches) succeed.
func (e *EmptyResultError) Is(target error) bool {
	return target == ErrNoMatches
}

// UserMessage maps an error from Recommend to the message shown to the candidate.
func UserMessage(err error) string {
	if errors.Is(err, ErrNoMatches) {
		return MessageNoMatches
	}
	return MessageFailed
}
