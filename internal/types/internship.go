// Package types provides type definitions for structured data used throughout the internship-compass system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Internship is a single catalog record. Title is unique within a catalog.
type Internship struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Sector         string   `json:"sector"`
	Location       string   `json:"location"`
	SkillsRequired []string `json:"skillsRequired"`
}

// Sector is one entry of the fixed sector list offered by the profile form.
type Sector struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// RankedResult is one entry of the ranking returned by the completion service.
// Rank is on a 1-10 scale, higher is better.
type RankedResult struct {
	Title  string  `json:"title"`
	Rank   float64 `json:"rank"`
	Reason string  `json:"reason"`
}

// Recommendation is a catalog record joined with its ranking.
type Recommendation struct {
	Internship
	Rank   float64 `json:"rank"`
	Reason string  `json:"reason"`
}

// RankBadge returns the display tier for a rank: "top", "good" or "fair".
func (r Recommendation) RankBadge() string {
	switch {
	case r.Rank > 7:
		return "top"
	case r.Rank > 4:
		return "good"
	default:
		return "fair"
	}
}

// LeadingSkills returns at most n required skills and how many were left out.
func (r Recommendation) LeadingSkills(n int) ([]string, int) {
	if len(r.SkillsRequired) <= n {
		return r.SkillsRequired, 0
	}
	return r.SkillsRequired[:n], len(r.SkillsRequired) - n
}
