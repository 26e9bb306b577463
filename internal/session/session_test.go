package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/internship-compass/internal/dom"
	"github.com/jonathan/internship-compass/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const testPage = `<!DOCTYPE html><html lang="en"><head><title>Internship Compass</title></head>` +
	`<body><h1>Internship Compass</h1><p>Your Guide to the PM Internship Scheme</p>` +
	`<form><label>Location</label><input name="location" value="Pune"><textarea>notes</textarea></form>` +
	`<div id="results"></div></body></html>`

// mockTranslator implements completion.Translator for testing.
// If gates has an entry for a language, calls for it block until the channel closes.
type mockTranslator struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]error
	calls atomic.Int32
}

func (m *mockTranslator) TranslateBatch(_ context.Context, texts []string, lang string) ([]string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	gate := m.gates[lang]
	err := m.fail[lang]
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "[" + lang + "] " + t
	}
	return out, nil
}

func (m *mockTranslator) gate(lang string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gates == nil {
		m.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	m.gates[lang] = ch
	return ch
}

func newTestSession(t *testing.T, tr *mockTranslator) *Session {
	t.Helper()
	doc, err := dom.ParseString(testPage)
	require.NoError(t, err)
	s := New("test", doc, i18n.NewCache(tr))
	t.Cleanup(s.Close)
	return s
}

func TestChangeLanguage_TranslatesVisibleText(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)

	require.NoError(t, s.ChangeLanguage(context.Background(), "fr"))

	out := s.String()
	assert.Equal(t, "fr", s.Language())
	assert.Contains(t, out, `<html lang="fr">`)
	assert.Contains(t, out, "<h1>[fr] Internship Compass</h1>")
	assert.Contains(t, out, "<label>[fr] Location</label>")
	assert.Contains(t, out, "<textarea>notes</textarea>", "form controls are left alone")
	assert.Contains(t, out, "<title>Internship Compass</title>", "only the body is translated")
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestChangeLanguage_SameLanguageIsNoop(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)

	require.NoError(t, s.ChangeLanguage(context.Background(), "en"))
	require.NoError(t, s.ChangeLanguage(context.Background(), "de"))
	require.NoError(t, s.ChangeLanguage(context.Background(), "de"))

	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestChangeLanguage_Unsupported(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})

	err := s.ChangeLanguage(context.Background(), "klingon")

	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Equal(t, i18n.DefaultLanguage, s.Language())
}

func TestChangeLanguage_UnsupportedLeavesStateAlone(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})
	require.NoError(t, s.ChangeLanguage(context.Background(), "fr"))
	translated := s.String()

	err := s.ChangeLanguage(context.Background(), "tlh")

	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Equal(t, "fr", s.Language())
	assert.Equal(t, translated, s.String())
}

func TestChangeLanguage_RoundTripIsByteIdentical(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})
	before := s.String()
	ctx := context.Background()

	require.NoError(t, s.ChangeLanguage(ctx, "hi"))
	require.NoError(t, s.ChangeLanguage(ctx, "es"))
	assert.Contains(t, s.String(), "[es] Internship Compass")
	assert.NotContains(t, s.String(), "[hi]", "languages are never mixed")

	require.NoError(t, s.ChangeLanguage(ctx, "en"))
	assert.Equal(t, before, s.String())
}

func TestChangeLanguage_DefaultWinsOverInFlight(t *testing.T) {
	tr := &mockTranslator{}
	release := tr.gate("fr")
	s := newTestSession(t, tr)
	before := s.String()

	done := make(chan error, 1)
	go func() { done <- s.ChangeLanguage(context.Background(), "fr") }()
	require.Eventually(t, s.IsTranslating, time.Second, 5*time.Millisecond)

	require.NoError(t, s.ChangeLanguage(context.Background(), "en"))
	assert.Equal(t, before, s.String(), "default restores before returning")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, before, s.String(), "stale batch is discarded")
	assert.Equal(t, i18n.DefaultLanguage, s.Language())
	assert.False(t, s.IsTranslating())
}

func TestChangeLanguage_NewerSwitchSupersedes(t *testing.T) {
	tr := &mockTranslator{}
	release := tr.gate("fr")
	s := newTestSession(t, tr)

	done := make(chan error, 1)
	go func() { done <- s.ChangeLanguage(context.Background(), "fr") }()
	require.Eventually(t, s.IsTranslating, time.Second, 5*time.Millisecond)

	require.NoError(t, s.ChangeLanguage(context.Background(), "de"))
	close(release)
	require.NoError(t, <-done)

	out := s.String()
	assert.Contains(t, out, "[de] Internship Compass")
	assert.NotContains(t, out, "[fr]")
	assert.Contains(t, out, `<html lang="de">`)
}

func TestChangeLanguage_FailureRestoresAndRevertsToDefault(t *testing.T) {
	tr := &mockTranslator{fail: map[string]error{"de": errors.New("service unavailable")}}
	s := newTestSession(t, tr)
	before := s.String()
	ctx := context.Background()

	require.NoError(t, s.ChangeLanguage(ctx, "fr"))
	err := s.ChangeLanguage(ctx, "de")

	var failure *TranslationFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "de", failure.Language)
	assert.Contains(t, err.Error(), "service unavailable")
	assert.Equal(t, i18n.DefaultLanguage, s.Language())
	assert.Equal(t, before, s.String())

	// the session keeps working after a failure
	require.NoError(t, s.ChangeLanguage(ctx, "fr"))
	assert.Contains(t, s.String(), "[fr] Internship Compass")
}

func TestMount_TranslatesNewContentIncrementally(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)
	ctx := context.Background()

	require.NoError(t, s.ChangeLanguage(ctx, "fr"))
	require.NoError(t, s.Mount(ctx, "#results", `<h2>Your Top Recommendations</h2><p>Internship Compass</p>`))

	out := s.String()
	assert.Contains(t, out, "<h2>[fr] Your Top Recommendations</h2>")
	assert.Contains(t, out, "<p>[fr] Internship Compass</p>")
	assert.Equal(t, int32(2), tr.calls.Load(), "cached strings are not re-sent")
	assert.NotContains(t, out, "[fr] [fr]", "self-writes never re-trigger translation")

	require.NoError(t, s.ChangeLanguage(ctx, "en"))
	assert.Contains(t, s.String(), "<h2>Your Top Recommendations</h2>")
}

func TestMount_DefaultLanguageDoesNotTranslate(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)
	ctx := context.Background()

	require.NoError(t, s.Mount(ctx, "#results", `<p>No Matches Found</p>`))
	assert.Equal(t, int32(0), tr.calls.Load())

	require.NoError(t, s.ChangeLanguage(ctx, "es"))
	assert.Contains(t, s.String(), "<p>[es] No Matches Found</p>")
}

func TestMount_ReplacedContentIsPruned(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})
	ctx := context.Background()

	require.NoError(t, s.ChangeLanguage(ctx, "fr"))
	require.NoError(t, s.Mount(ctx, "#results", `<p>first</p>`))
	require.NoError(t, s.Mount(ctx, "#results", `<p>second</p>`))

	s.mu.Lock()
	texts := s.snapshot.Texts()
	s.mu.Unlock()
	assert.Contains(t, texts, "second")
	assert.NotContains(t, texts, "first")

	require.NoError(t, s.ChangeLanguage(ctx, "en"))
	assert.Contains(t, s.String(), "<p>second</p>")
}

func TestMount_IncrementalFailureKeepsSourceText(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)
	ctx := context.Background()
	require.NoError(t, s.ChangeLanguage(ctx, "fr"))

	tr.mu.Lock()
	tr.fail = map[string]error{"fr": errors.New("quota")}
	tr.mu.Unlock()

	require.NoError(t, s.Mount(ctx, "#results", `<p>Rank</p>`))
	out := s.String()
	assert.Contains(t, out, "<p>Rank</p>")
	assert.Contains(t, out, "[fr] Internship Compass")
	assert.Equal(t, "fr", s.Language())
}

func TestMount_UnknownSelector(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})

	assert.Error(t, s.Mount(context.Background(), "#nope", "<p>x</p>"))
}

func TestT_UsesCache(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})
	assert.Equal(t, "Rank: {rank}/10", s.T("rank", "Rank: {rank}/10"))

	require.NoError(t, s.ChangeLanguage(context.Background(), "de"))
	rev := s.Revision()
	assert.Equal(t, "Showing {count} best matches", s.T("showing", "Showing {count} best matches"))
	assert.Eventually(t, func() bool {
		return strings.HasPrefix(s.T("showing", "Showing {count} best matches"), "[de]")
	}, time.Second, 5*time.Millisecond)
	assert.Greater(t, s.Revision(), rev)
}

func TestDo_BumpsRevision(t *testing.T) {
	s := newTestSession(t, &mockTranslator{})
	rev := s.Revision()

	err := s.Do(context.Background(), func(d *dom.Document) {
		d.SetAttr(d.Find("input")[0], "value", "Delhi")
	})

	require.NoError(t, err)
	assert.Greater(t, s.Revision(), rev)
	assert.Contains(t, s.String(), `value="Delhi"`)
}

func TestDo_TranslatesAddedText(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)
	require.NoError(t, s.ChangeLanguage(context.Background(), "fr"))
	calls := tr.calls.Load()

	err := s.Do(context.Background(), func(d *dom.Document) {
		p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		p.AppendChild(&html.Node{Type: html.TextNode, Data: "Added later"})
		d.AppendChild(d.Find("#results")[0], p)
	})

	require.NoError(t, err)
	assert.Contains(t, s.String(), "<p>[fr] Added later</p>")
	assert.Equal(t, calls+1, tr.calls.Load())
}

func TestDo_DefaultLanguageLeavesTextAlone(t *testing.T) {
	tr := &mockTranslator{}
	s := newTestSession(t, tr)

	err := s.Do(context.Background(), func(d *dom.Document) {
		p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		p.AppendChild(&html.Node{Type: html.TextNode, Data: "Added later"})
		d.AppendChild(d.Find("#results")[0], p)
	})

	require.NoError(t, err)
	assert.Contains(t, s.String(), "<p>Added later</p>")
	assert.Equal(t, int32(0), tr.calls.Load())
}
