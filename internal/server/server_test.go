package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/internship-compass/internal/catalog"
	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/config"
	"github.com/jonathan/internship-compass/internal/llm"
	"github.com/jonathan/internship-compass/internal/recommend"
	"github.com/jonathan/internship-compass/internal/server/middleware"
	"github.com/jonathan/internship-compass/internal/server/ratelimit"
	"github.com/jonathan/internship-compass/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRanker implements completion.Ranker for testing.
type mockRanker struct {
	RankFunc func(ctx context.Context, profile types.CandidateProfile, catalog []types.Internship) ([]types.RankedResult, error)
	profiles []types.CandidateProfile
}

func (m *mockRanker) RankInternships(ctx context.Context, profile types.CandidateProfile, catalog []types.Internship) ([]types.RankedResult, error) {
	m.profiles = append(m.profiles, profile)
	if m.RankFunc != nil {
		return m.RankFunc(ctx, profile, catalog)
	}
	return nil, nil
}

// mockTranslator implements completion.Translator by prefixing the language code.
type mockTranslator struct {
	mu    sync.Mutex
	fail  error
	calls atomic.Int32
}

func (m *mockTranslator) TranslateBatch(_ context.Context, texts []string, lang string) ([]string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	err := m.fail
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "[" + lang + "] " + t
	}
	return out, nil
}

// mockLLMClient implements llm.Client for testing.
type mockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	calls            atomic.Int32
}

func (m *mockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return m.GenerateJSON(ctx, prompt, tier)
}

func (m *mockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	m.calls.Add(1)
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return "", errors.New("not implemented")
}

func (m *mockLLMClient) Close() error { return nil }

type testServer struct {
	*Server
	ranker     *mockRanker
	translator *mockTranslator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithConfig(t, Config{})
}

func newTestServerWithConfig(t *testing.T, cfg Config) *testServer {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	if cfg.Cookie == nil {
		cfg.Cookie = &config.CookieConfig{Secret: "test-secret-key-for-cookies", MaxAgeDays: 30}
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = &ratelimit.Config{Enabled: false}
	}

	ranker := &mockRanker{}
	translator := &mockTranslator{}
	s, err := New(cfg, cat, ranker, translator)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)

	return &testServer{Server: s, ranker: ranker, translator: translator}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

// startSession loads the page and returns the session cookie.
func (ts *testServer) startSession(t *testing.T) *http.Cookie {
	t.Helper()
	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (ts *testServer) page(t *testing.T, cookies ...*http.Cookie) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func postForm(path string, values url.Values, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func postJSON(t *testing.T, path string, body any, cookies ...*http.Cookie) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

var validProfile = url.Values{
	"education":      {"B.Sc. Computer Science"},
	"skills":         {"python, data analysis, , communication"},
	"sectorInterest": {"technology"},
	"location":       {"New Delhi"},
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(10), resp["internships"])
}

func TestIndex_RendersPageForNewSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<html lang="en">`)
	assert.Contains(t, body, "<h1>Internship Compass</h1>")
	assert.Contains(t, body, "perfect internship!")
	assert.Contains(t, body, `<option value="healthcare">Healthcare</option>`)
	assert.Equal(t, "en", w.Header().Get("Content-Language"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, 1, ts.sessions.Len())
	assert.Equal(t, int32(0), ts.translator.calls.Load())
}

func TestIndex_NotModified(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	first := ts.do(req)
	etag := first.Header().Get("ETag")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	req.Header.Set("If-None-Match", etag)
	w := ts.do(req)

	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestIndex_UnknownPathIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecommendations_FormPostMountsResults(t *testing.T) {
	ts := newTestServer(t)
	ts.ranker.RankFunc = func(_ context.Context, _ types.CandidateProfile, catalog []types.Internship) ([]types.RankedResult, error) {
		assert.Len(t, catalog, 10)
		return []types.RankedResult{
			{Title: "Digital India Intern", Rank: 6, Reason: "Good communication fit."},
			{Title: "Ayushman Bharat Health Data Analyst", Rank: 9, Reason: "Python and data analysis match."},
			{Title: "Ghost Role", Rank: 10, Reason: "Not in the catalog."},
		}, nil
	}
	cookie := ts.startSession(t)

	w := ts.do(postForm("/recommendations", validProfile, cookie))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/#results", w.Header().Get("Location"))
	require.Len(t, ts.ranker.profiles, 1)
	assert.Equal(t, []string{"python", "data analysis", "communication"}, ts.ranker.profiles[0].Skills)
	assert.Equal(t, []string{"technology"}, ts.ranker.profiles[0].SectorInterests)

	body := ts.page(t, cookie)
	assert.Contains(t, body, "Showing 2 best matches")
	assert.Contains(t, body, "Rank: 9/10")
	assert.Contains(t, body, "Why it&#39;s a good match:")
	assert.Contains(t, body, "+1 more")
	assert.NotContains(t, body, "Ghost Role")
	assert.Less(t, strings.Index(body, "Ayushman Bharat"), strings.Index(body, "Digital India Intern"))
	assert.Contains(t, body, `value="New Delhi"`, "submitted values are kept")
}

func TestRecommendations_JSON(t *testing.T) {
	tests := []struct {
		name        string
		rank        func() ([]types.RankedResult, error)
		wantStatus  int
		wantCount   int
		wantMessage string
		wantPage    string
	}{
		{
			name: "results",
			rank: func() ([]types.RankedResult, error) {
				return []types.RankedResult{{Title: "Digital India Intern", Rank: 8, Reason: "fit"}}, nil
			},
			wantStatus:  http.StatusOK,
			wantCount:   1,
			wantMessage: "Showing 1 best matches",
			wantPage:    "Showing 1 best matches",
		},
		{
			name: "no matches",
			rank: func() ([]types.RankedResult, error) {
				return []types.RankedResult{{Title: "Ghost Role", Rank: 10}}, nil
			},
			wantStatus:  http.StatusOK,
			wantMessage: recommend.MessageNoMatches,
			wantPage:    "No Matches Found",
		},
		{
			name: "ranking failure",
			rank: func() ([]types.RankedResult, error) {
				return nil, completion.ErrMalformedResponse
			},
			wantStatus:  http.StatusBadGateway,
			wantMessage: recommend.MessageFailed,
			wantPage:    "An Error Occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.ranker.RankFunc = func(context.Context, types.CandidateProfile, []types.Internship) ([]types.RankedResult, error) {
				return tt.rank()
			}
			cookie := ts.startSession(t)

			w := ts.do(postJSON(t, "/recommendations", types.ProfileForm{
				Education:      "12th Pass",
				Skills:         "communication",
				SectorInterest: "technology",
				Location:       "Pune",
			}, cookie))

			require.Equal(t, tt.wantStatus, w.Code)
			var resp RecommendationsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.Recommendations, tt.wantCount)
			assert.NotNil(t, resp.Recommendations)
			assert.Equal(t, tt.wantMessage, resp.Message)

			assert.Contains(t, ts.page(t, cookie), tt.wantPage)
		})
	}
}

func TestRecommendations_ValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	w := ts.do(postJSON(t, "/recommendations", map[string]string{
		"education":      "BA",
		"skills":         "",
		"sectorInterest": "space",
		"location":       "Goa",
	}, cookie))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Please enter your education level.", resp.Fields["education"])
	assert.Equal(t, "Please list at least one skill.", resp.Fields["skills"])
	assert.Equal(t, "Please select a sector of interest.", resp.Fields["sectorInterest"])
	assert.NotContains(t, resp.Fields, "location")
	assert.Empty(t, ts.ranker.profiles, "ranking is not called for invalid input")

	body := ts.page(t, cookie)
	assert.Contains(t, body, `<p class="field-error">Please list at least one skill.</p>`)
	assert.Contains(t, body, `value="Goa"`)
}

func TestRecommendations_FormValidationRedirects(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	w := ts.do(postForm("/recommendations", url.Values{"education": {"x"}}, cookie))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/#profile", w.Header().Get("Location"))
	assert.Contains(t, ts.page(t, cookie), "Please enter your preferred city or region.")
}

func TestRecommendations_BadJSON(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	req := httptest.NewRequest(http.MethodPost, "/recommendations", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	w := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLanguage_FormSwitchTranslatesPage(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	w := ts.do(postForm("/language", url.Values{"language": {"fr"}}, cookie))

	require.Equal(t, http.StatusSeeOther, w.Code)
	var langCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == LanguageCookieName {
			langCookie = c
		}
	}
	require.NotNil(t, langCookie)
	code, err := ts.cookies.Verify(langCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "fr", code)

	body := ts.page(t, cookie)
	assert.Contains(t, body, `<html lang="fr">`)
	assert.Contains(t, body, "<h1>[fr] Internship Compass</h1>")
	assert.Contains(t, body, `<option value="fr" selected="selected">[fr] French</option>`)
	assert.Contains(t, body, `<option value="en">[fr] English</option>`)
	assert.Equal(t, int32(1), ts.translator.calls.Load())

	// back to the default restores the authored text
	w = ts.do(postForm("/language", url.Values{"language": {"en"}}, cookie))
	require.Equal(t, http.StatusSeeOther, w.Code)
	body = ts.page(t, cookie)
	assert.Contains(t, body, "<h1>Internship Compass</h1>")
	assert.NotContains(t, body, "[fr]")
}

func TestLanguage_ResultsMountedAfterSwitchAreTranslated(t *testing.T) {
	ts := newTestServer(t)
	ts.ranker.RankFunc = func(context.Context, types.CandidateProfile, []types.Internship) ([]types.RankedResult, error) {
		return []types.RankedResult{{Title: "Digital India Intern", Rank: 8, Reason: "fit"}}, nil
	}
	cookie := ts.startSession(t)

	require.Equal(t, http.StatusOK, ts.do(postJSON(t, "/language", LanguageRequest{Language: "hi"}, cookie)).Code)
	require.Equal(t, http.StatusSeeOther, ts.do(postForm("/recommendations", validProfile, cookie)).Code)

	body := ts.page(t, cookie)
	assert.Contains(t, body, "[hi] Showing 1 best matches")
	assert.Contains(t, body, "[hi] Digital India Intern")
}

func TestLanguage_JSONFailureFallsBack(t *testing.T) {
	ts := newTestServer(t)
	ts.translator.fail = errors.New("quota exceeded")
	cookie := ts.startSession(t)

	w := ts.do(postJSON(t, "/language", LanguageRequest{Language: "de"}, cookie))

	require.Equal(t, http.StatusOK, w.Code)
	var resp LanguageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "en", resp.Language)
	assert.True(t, resp.Fallback)
	assert.Equal(t, MessageTranslationFailed, resp.Message)

	body := ts.page(t, cookie)
	assert.Contains(t, body, `<html lang="en">`)
	assert.Contains(t, body, "<h1>Internship Compass</h1>")
}

func TestLanguage_Unsupported(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	w := ts.do(postJSON(t, "/language", LanguageRequest{Language: "tlh"}, cookie))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int32(0), ts.translator.calls.Load())
}

func TestLanguage_UnsupportedKeepsCurrentLanguage(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)

	w := ts.do(postJSON(t, "/language", LanguageRequest{Language: "fr"}, cookie))
	require.Equal(t, http.StatusOK, w.Code)
	calls := ts.translator.calls.Load()

	w = ts.do(postJSON(t, "/language", LanguageRequest{Language: "tlh"}, cookie))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Result().Cookies())
	assert.Equal(t, calls, ts.translator.calls.Load())
	assert.Contains(t, ts.page(t, cookie), `<html lang="fr">`)
}

func TestIndex_SessionCap(t *testing.T) {
	ts := newTestServerWithConfig(t, Config{MaxSessions: 2})

	first := ts.startSession(t)
	ts.startSession(t)
	ts.startSession(t)

	assert.Equal(t, 2, ts.sessions.Len())
	_, ok := ts.sessions.Get(first.Value)
	assert.False(t, ok, "the least recently used session is evicted")

	w := ts.do(postJSON(t, "/language", LanguageRequest{Language: "en"}, first))
	require.Equal(t, http.StatusOK, w.Code)
	var renewed bool
	for _, c := range w.Result().Cookies() {
		renewed = renewed || (c.Name == middleware.SessionCookieName && c.Value != first.Value)
	}
	assert.True(t, renewed, "an evicted visitor gets a new session")
	assert.Equal(t, 2, ts.sessions.Len())
}

func TestIndex_RestoresLanguageFromCookie(t *testing.T) {
	ts := newTestServer(t)
	token, err := ts.cookies.Sign("es")
	require.NoError(t, err)

	body := ts.page(t, &http.Cookie{Name: LanguageCookieName, Value: token})

	assert.Contains(t, body, `<html lang="es">`)
	assert.Contains(t, body, "[es] Internship Compass")
}

func TestIndex_InitialLanguage(t *testing.T) {
	ts := newTestServerWithConfig(t, Config{InitialLanguage: "de"})

	body := ts.page(t)

	assert.Contains(t, body, `<html lang="de">`)
}

func TestNew_RejectsUnknownInitialLanguage(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	_, err = New(Config{
		InitialLanguage: "zz",
		Cookie:          &config.CookieConfig{Secret: "test-secret-key-for-cookies", MaxAgeDays: 1},
		RateLimit:       &ratelimit.Config{Enabled: false},
	}, cat, &mockRanker{}, &mockTranslator{})

	assert.Error(t, err)
}

func TestTranslateEndpoint(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	client := &mockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			assert.Equal(t, llm.TierLite, tier)
			assert.Contains(t, prompt, "French")
			return "```json\n{\"translations\": [\"Bonjour\", \"Monde\"]}\n```", nil
		},
	}
	s, err := New(Config{
		Cookie:    &config.CookieConfig{Secret: "test-secret-key-for-cookies", MaxAgeDays: 1},
		RateLimit: &ratelimit.Config{Enabled: false},
	}, cat, &mockRanker{}, completion.NewService(client))
	require.NoError(t, err)
	ts := &testServer{Server: s}

	t.Run("translates in order", func(t *testing.T) {
		w := ts.do(postJSON(t, "/api/translate", TranslateRequest{Texts: []string{"Hello", "World"}, TargetLanguage: "fr"}))

		require.Equal(t, http.StatusOK, w.Code)
		var resp TranslateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{"Bonjour", "Monde"}, resp.Translations)
	})

	t.Run("blank input never calls the model", func(t *testing.T) {
		before := client.calls.Load()
		w := ts.do(postJSON(t, "/api/translate", TranslateRequest{Texts: []string{"", "  "}, TargetLanguage: "fr"}))

		require.Equal(t, http.StatusOK, w.Code)
		var resp TranslateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []string{"", "  "}, resp.Translations)
		assert.Equal(t, before, client.calls.Load())
	})

	t.Run("unsupported language", func(t *testing.T) {
		for _, code := range []string{"xx", "tlh"} {
			w := ts.do(postJSON(t, "/api/translate", TranslateRequest{Texts: []string{"Hello"}, TargetLanguage: code}))
			assert.Equal(t, http.StatusBadRequest, w.Code, code)
		}
	})

	t.Run("length mismatch is a bad gateway", func(t *testing.T) {
		w := ts.do(postJSON(t, "/api/translate", TranslateRequest{Texts: []string{"One"}, TargetLanguage: "fr"}))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestLanguagesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.startSession(t)
	require.Equal(t, http.StatusSeeOther, ts.do(postForm("/language", url.Values{"language": {"fr"}}, cookie)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/languages", nil)
	req.Header.Set("Accept-Language", "hi-IN,hi;q=0.9,en;q=0.8")
	req.AddCookie(cookie)
	w := ts.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Languages []map[string]string `json:"languages"`
		Default   string              `json:"default"`
		Suggested string              `json:"suggested"`
		Current   string              `json:"current"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Languages, 5)
	assert.Equal(t, "en", resp.Default)
	assert.Equal(t, "hi", resp.Suggested)
	assert.Equal(t, "fr", resp.Current)
}

func TestSectorsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/sectors", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Sectors []types.Sector `json:"sectors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sectors, 10)
	assert.Equal(t, types.Sector{Value: "technology", Label: "Technology"}, resp.Sectors[0])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodOptions, "/api/translate", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServerWithConfig(t, Config{RateLimit: &ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/api/translate", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1},
		},
	}})
	body := TranslateRequest{Texts: []string{""}, TargetLanguage: "fr"}

	first := ts.do(postJSON(t, "/api/translate", body))
	second := ts.do(postJSON(t, "/api/translate", body))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// health checks are never throttled
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	}
}
