// Package session owns the per-visitor document and its translation state.
//
// Each Session serialises every document read and write behind one mutex.
// Calls to the translation service are made with the mutex released, and
// their results are applied only if the language has not changed meanwhile.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonathan/internship-compass/internal/dom"
	"github.com/jonathan/internship-compass/internal/i18n"
	"golang.org/x/net/html"
)

// ErrUnsupportedLanguage is returned for a code outside the language registry.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// TranslationFailure reports a language switch that could not be completed.
// The document has already been restored to the default language.
type TranslationFailure struct {
	Language string
	Err      error
}

func (f *TranslationFailure) Error() string {
	return fmt.Sprintf("translation to %s failed: %v", f.Language, f.Err)
}

func (f *TranslationFailure) Unwrap() error {
	return f.Err
}

// Session is one visitor's live document plus its translation cache.
type Session struct {
	ID string

	mu       sync.Mutex
	doc      *dom.Document
	cache    *i18n.Cache
	snapshot dom.Snapshot
	pending  dom.Snapshot
	inflight int
	lastSeen time.Time

	revision    atomic.Uint64
	stopObserve func()
	unsubscribe func()
}

// New creates a session around doc. The document starts in the default language.
func New(id string, doc *dom.Document, cache *i18n.Cache) *Session {
	s := &Session{
		ID:       id,
		doc:      doc,
		cache:    cache,
		lastSeen: time.Now(),
	}
	s.stopObserve = doc.Observe(s.onMutation)
	s.unsubscribe = cache.Subscribe(func(i18n.Update) { s.revision.Add(1) })
	return s
}

// Language returns the selected language code.
func (s *Session) Language() string {
	return s.cache.Language()
}

// IsTranslating reports whether a translation batch is in flight.
func (s *Session) IsTranslating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Revision changes whenever the document or the translation table changes.
func (s *Session) Revision() uint64 {
	return s.revision.Load()
}

// ChangeLanguage switches the document to code.
//
// Switching to the default language restores every original text before it
// returns, whatever is still in flight. Any other switch resolves
// translations with the lock released and applies them only if no newer
// switch happened meanwhile. When the batch fails the document is restored,
// the session falls back to the default language, and a *TranslationFailure
// is returned.
func (s *Session) ChangeLanguage(ctx context.Context, code string) error {
	code, ok := i18n.Normalize(code)
	if !ok {
		return ErrUnsupportedLanguage
	}

	s.mu.Lock()
	epoch, changed := s.cache.SetLanguage(code)
	if !changed {
		s.mu.Unlock()
		return nil
	}

	if code == i18n.DefaultLanguage {
		s.resetLocked()
		s.mu.Unlock()
		return nil
	}

	if s.snapshot == nil {
		s.snapshot = dom.Collect(s.doc.Body())
	} else {
		s.doc.Restore(s.snapshot)
	}
	s.pending = nil
	snap := s.snapshot
	if len(snap) == 0 {
		s.doc.SetLang(code)
		s.mu.Unlock()
		return nil
	}
	s.inflight++
	s.mu.Unlock()

	translated, err := s.cache.Resolve(ctx, epoch, itemsFor(snap))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--

	if s.cache.Epoch() != epoch || errors.Is(err, i18n.ErrSuperseded) {
		return nil
	}
	if err != nil {
		s.resetLocked()
		s.cache.SetLanguage(i18n.DefaultLanguage)
		failure := &TranslationFailure{Language: code, Err: err}
		log.Printf("[session] %s: %v", s.ID, failure)
		return failure
	}

	if _, err := s.doc.Apply(snap, translated); err != nil {
		return fmt.Errorf("failed to apply translations: %w", err)
	}
	s.doc.SetLang(code)
	s.revision.Add(1)
	return nil
}

// resetLocked restores originals and drops the snapshot.
func (s *Session) resetLocked() {
	s.doc.Restore(s.snapshot)
	s.snapshot = nil
	s.pending = nil
	s.doc.SetLang(i18n.DefaultLanguage)
	s.revision.Add(1)
}

// Mount replaces the children of the elements matching selector with the
// parsed fragment. While a non-default language is selected the new text is
// translated before Mount returns; a failed incremental batch leaves the new
// text in the default language and is only logged.
func (s *Session) Mount(ctx context.Context, selector, fragment string) error {
	s.mu.Lock()
	if _, err := s.doc.SetInnerHTML(selector, fragment); err != nil {
		s.mu.Unlock()
		return err
	}
	s.revision.Add(1)
	s.snapshot = pruneDetached(s.doc, s.snapshot)
	return s.flushPendingLocked(ctx)
}

// flushPendingLocked translates text queued by structural mutations. It is
// entered with s.mu held and returns with it released.
func (s *Session) flushPendingLocked(ctx context.Context) error {
	pending := s.pending
	s.pending = nil
	epoch := s.cache.Epoch()
	lang := s.cache.Language()
	s.mu.Unlock()

	if len(pending) == 0 || lang == i18n.DefaultLanguage {
		return nil
	}

	translated, err := s.cache.Resolve(ctx, epoch, itemsFor(pending))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Epoch() != epoch || errors.Is(err, i18n.ErrSuperseded) {
		return nil
	}
	if err != nil {
		log.Printf("[session] %s: incremental %v", s.ID, &TranslationFailure{Language: lang, Err: err})
		return nil
	}
	if _, err := s.doc.Apply(pending, translated); err != nil {
		return fmt.Errorf("failed to apply translations: %w", err)
	}
	s.revision.Add(1)
	return nil
}

// onMutation queues text from structurally added nodes while a non-default
// language is selected. Text writes, including the synchronizer's own, are ignored.
func (s *Session) onMutation(m dom.Mutation) {
	if m.Self || m.Kind != dom.ChildList || len(m.Added) == 0 {
		return
	}
	if s.cache.Language() == i18n.DefaultLanguage {
		return
	}
	for _, n := range m.Added {
		for _, tn := range dom.Collect(n) {
			if s.snapshot.Contains(tn.Node) {
				continue
			}
			s.snapshot = append(s.snapshot, tn)
			s.pending = append(s.pending, tn)
		}
	}
}

// T returns the current-language text for a keyed server string. Misses
// return source and are fetched in the background.
func (s *Session) T(key, source string) string {
	return s.cache.Lookup(key, source)
}

// Do runs fn against the document with the session lock held. Text added by
// fn is translated before Do returns, the same way Mount translates it.
func (s *Session) Do(ctx context.Context, fn func(d *dom.Document)) error {
	s.mu.Lock()
	fn(s.doc)
	s.revision.Add(1)
	s.snapshot = pruneDetached(s.doc, s.snapshot)
	return s.flushPendingLocked(ctx)
}

// Find returns the nodes matching selector. Callers must not retain them
// past the next mutation.
func (s *Session) Find(selector string) []*html.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Find(selector)
}

// Render writes the live document.
func (s *Session) Render(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Render(w)
}

// String renders the live document.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.String()
}

// Close detaches the session from its document and cache.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopObserve != nil {
		s.stopObserve()
		s.stopObserve = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// itemsFor keys each text by its source so repeated strings share one entry.
func itemsFor(snap dom.Snapshot) []i18n.Item {
	items := make([]i18n.Item, len(snap))
	for i, tn := range snap {
		items[i] = i18n.Item{Key: tn.Original, Source: tn.Original}
	}
	return items
}

func pruneDetached(doc *dom.Document, snap dom.Snapshot) dom.Snapshot {
	if snap == nil {
		return nil
	}
	// fresh slice: an in-flight ChangeLanguage may still hold the old one
	kept := make(dom.Snapshot, 0, len(snap))
	for _, tn := range snap {
		if doc.IsConnected(tn.Node) {
			kept = append(kept, tn)
		}
	}
	return kept
}
