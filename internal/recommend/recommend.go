// Package recommend turns a candidate profile into the top ranked internships.
package recommend

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jonathan/internship-compass/internal/catalog"
	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/types"
)

// DefaultLimit is how many recommendations are shown.
const DefaultLimit = 5

// Assembler joins ranking output back to catalog records.
type Assembler struct {
	ranker  completion.Ranker
	catalog *catalog.Catalog
	limit   int
}

// NewAssembler creates an assembler returning at most DefaultLimit results.
func NewAssembler(ranker completion.Ranker, cat *catalog.Catalog) *Assembler {
	return &Assembler{ranker: ranker, catalog: cat, limit: DefaultLimit}
}

// Recommend ranks the whole catalog for profile and returns the best matches,
// highest rank first. An empty result is reported as *EmptyResultError.
// Ranking failures are wrapped with ErrRecommendationFailed.
func (a *Assembler) Recommend(ctx context.Context, profile types.CandidateProfile) ([]types.Recommendation, error) {
	ranked, err := a.ranker.RankInternships(ctx, profile, a.catalog.Internships())
	if err != nil {
		log.Printf("[recommend] ranking failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrRecommendationFailed, err)
	}

	recs := Assemble(ranked, a.catalog, a.limit)
	if len(recs) == 0 {
		return nil, &EmptyResultError{Ranked: len(ranked)}
	}
	return recs, nil
}

// Assemble joins ranked against cat by exact title, drops unknown titles,
// sorts by rank descending (ties keep response order) and keeps at most limit.
// A title ranked more than once keeps its first occurrence.
func Assemble(ranked []types.RankedResult, cat *catalog.Catalog, limit int) []types.Recommendation {
	recs := make([]types.Recommendation, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))

	for _, r := range ranked {
		in, ok := cat.Lookup(r.Title)
		if !ok {
			log.Printf("[recommend] dropping unknown title %q", r.Title)
			continue
		}
		if seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		recs = append(recs, types.Recommendation{Internship: in, Rank: r.Rank, Reason: r.Reason})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Rank > recs[j].Rank
	})

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
