// Package completion wraps the LLM for the two structured tasks the app needs:
// ranking the internship catalog against a profile and translating UI text.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/internship-compass/internal/llm"
	"github.com/jonathan/internship-compass/internal/prompts"
	"github.com/jonathan/internship-compass/internal/schemas"
	"github.com/jonathan/internship-compass/internal/types"
	root "github.com/jonathan/internship-compass/schemas"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Ranker ranks a catalog against a candidate profile.
type Ranker interface {
	RankInternships(ctx context.Context, profile types.CandidateProfile, catalog []types.Internship) ([]types.RankedResult, error)
}

// Translator translates a batch of strings, preserving length and order.
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, targetLanguage string) ([]string, error)
}

// Service implements Ranker and Translator on top of an llm.Client.
type Service struct {
	client llm.Client
}

// NewService creates a completion service.
func NewService(client llm.Client) *Service {
	return &Service{client: client}
}

// RankInternships asks the model to score every catalog entry for the profile.
// The reply is returned as-is; joining against the catalog is the caller's job.
func (s *Service) RankInternships(ctx context.Context, profile types.CandidateProfile, catalog []types.Internship) ([]types.RankedResult, error) {
	prompt := buildRankingPrompt(profile, catalog)

	jsonResp, err := s.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("ranking generation failed: %w", err)
	}

	jsonResp = llm.CleanJSONBlock(jsonResp)
	if err := schemas.Validate(root.RankedResults, jsonResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var results []types.RankedResult
	if err := json.Unmarshal([]byte(jsonResp), &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return results, nil
}

type translationResponse struct {
	Translations []string `json:"translations"`
}

// TranslateBatch translates texts into targetLanguage (a language code such as "fr").
// When every input is blank the inputs are returned unchanged and the model is not called.
func (s *Service) TranslateBatch(ctx context.Context, texts []string, targetLanguage string) ([]string, error) {
	if allBlank(texts) {
		out := make([]string, len(texts))
		copy(out, texts)
		return out, nil
	}

	encoded, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode texts: %w", err)
	}

	template := prompts.MustGet("translation.json", "translate-batch")
	prompt := prompts.Format(template, map[string]string{
		"TargetLanguage": LanguageName(targetLanguage),
		"Count":          strconv.Itoa(len(texts)),
		"Texts":          string(encoded),
	})

	jsonResp, err := s.client.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("translation generation failed: %w", err)
	}

	jsonResp = llm.CleanJSONBlock(jsonResp)
	if err := schemas.Validate(root.TranslationBatch, jsonResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var resp translationResponse
	if err := json.Unmarshal([]byte(jsonResp), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Translations) != len(texts) {
		return nil, fmt.Errorf("%w: got %d translations for %d texts",
			ErrMalformedResponse, len(resp.Translations), len(texts))
	}
	return resp.Translations, nil
}

// TranslateText translates a single string.
func (s *Service) TranslateText(ctx context.Context, text, targetLanguage string) (string, error) {
	out, err := s.TranslateBatch(ctx, []string{text}, targetLanguage)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// LanguageName returns the English display name for a language code,
// falling back to the code itself when it cannot be parsed.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

func allBlank(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

func buildRankingPrompt(profile types.CandidateProfile, catalog []types.Internship) string {
	var lines []string
	for _, in := range catalog {
		lines = append(lines, fmt.Sprintf("- Title: %s, Description: %s, Sector: %s, Location: %s, Skills Required: %s",
			in.Title, in.Description, in.Sector, in.Location, strings.Join(in.SkillsRequired, ", ")))
	}

	template := prompts.MustGet("ranking.json", "rank-internships")
	return prompts.Format(template, map[string]string{
		"Education":       profile.Education,
		"Skills":          strings.Join(profile.Skills, ", "),
		"SectorInterests": strings.Join(profile.SectorInterests, ", "),
		"Location":        profile.Location,
		"Internships":     strings.Join(lines, "\n"),
	})
}
