// Package i18n holds the per-session translation table and the language registry.
//
// A Cache tracks one current language and the translated strings for it.
// Changing language bumps an epoch; any translation that completes under an
// older epoch is dropped instead of written.
package i18n

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jonathan/internship-compass/internal/completion"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned when a translation finishes after the language changed.
var ErrSuperseded = errors.New("translation superseded by a newer language selection")

// DefaultFetchTimeout bounds a background lookup fetch.
const DefaultFetchTimeout = 30 * time.Second

// Entry is one cached translation.
type Entry struct {
	Original   string
	Translated string
}

// Item is a keyed source string to translate.
type Item struct {
	Key    string
	Source string
}

// Update is sent to subscribers when a background lookup lands in the table.
type Update struct {
	Language string
	Epoch    uint64
	Key      string
}

// Cache is a translation table for a single language at a time.
type Cache struct {
	translator   completion.Translator
	fetchTimeout time.Duration

	mu      sync.Mutex
	current string
	epoch   uint64
	entries map[string]Entry
	pending int

	group   singleflight.Group
	subs    map[int]func(Update)
	nextSub int
}

// NewCache creates a cache in the default language.
func NewCache(translator completion.Translator) *Cache {
	return &Cache{
		translator:   translator,
		fetchTimeout: DefaultFetchTimeout,
		current:      DefaultLanguage,
		entries:      make(map[string]Entry),
		subs:         make(map[int]func(Update)),
	}
}

// Language returns the current language code.
func (c *Cache) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Epoch returns the current epoch.
func (c *Cache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Loading reports whether background lookups for the current language are in flight.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SetLanguage switches the current language. Selecting the current language
// is a no-op and reports changed=false. Any other switch clears the table and
// bumps the epoch, so results still in flight for the old language are discarded.
func (c *Cache) SetLanguage(code string) (epoch uint64, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if code == c.current {
		return c.epoch, false
	}

	c.current = code
	c.epoch++
	c.entries = make(map[string]Entry)
	c.pending = 0
	return c.epoch, true
}

// Get returns a cached entry without scheduling a fetch.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Lookup returns the translation of sourceText for key. On a miss it returns
// sourceText and starts a background fetch; concurrent misses for the same
// key share one fetch. Subscribers are notified when the entry is written.
func (c *Cache) Lookup(key, sourceText string) string {
	c.mu.Lock()
	if c.current == DefaultLanguage {
		c.mu.Unlock()
		return sourceText
	}
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.Translated
	}
	lang, epoch := c.current, c.epoch
	c.mu.Unlock()

	flightKey := strconv.FormatUint(epoch, 10) + "\x00" + key
	// DoChan never blocks the caller; the result lands in the table.
	c.group.DoChan(flightKey, func() (interface{}, error) {
		c.fetch(lang, epoch, key, sourceText)
		return nil, nil
	})

	return sourceText
}

func (c *Cache) fetch(lang string, epoch uint64, key, sourceText string) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.pending++
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	out, err := c.translator.TranslateBatch(ctx, []string{sourceText}, lang)
	if err == nil && len(out) != 1 {
		err = fmt.Errorf("%w: got %d translations for 1 text", completion.ErrMalformedResponse, len(out))
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.pending--
	if err != nil {
		c.mu.Unlock()
		log.Printf("[i18n] lookup %q (%s) failed: %v", key, lang, err)
		return
	}
	c.entries[key] = Entry{Original: sourceText, Translated: out[0]}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	u := Update{Language: lang, Epoch: epoch, Key: key}
	for _, fn := range subs {
		fn(u)
	}
}

// Resolve translates items for the language selected at epoch. Cached items
// are served from the table and the rest go out as one batch. If the epoch
// has moved on, either before or after the batch, ErrSuperseded is returned
// and nothing is written.
func (c *Cache) Resolve(ctx context.Context, epoch uint64, items []Item) ([]string, error) {
	out := make([]string, len(items))

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	lang := c.current
	if lang == DefaultLanguage {
		c.mu.Unlock()
		for i, it := range items {
			out[i] = it.Source
		}
		return out, nil
	}

	// unique misses, in first-seen order
	var missKeys []string
	var missSources []string
	missIdx := make(map[string]int)
	for i, it := range items {
		if e, ok := c.entries[it.Key]; ok {
			out[i] = e.Translated
			continue
		}
		if _, ok := missIdx[it.Key]; !ok {
			missIdx[it.Key] = len(missKeys)
			missKeys = append(missKeys, it.Key)
			missSources = append(missSources, it.Source)
		}
	}
	c.mu.Unlock()

	if len(missKeys) == 0 {
		return out, nil
	}

	translated, err := c.translator.TranslateBatch(ctx, missSources, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to translate %d strings to %s: %w", len(missSources), lang, err)
	}
	if len(translated) != len(missSources) {
		return nil, fmt.Errorf("%w: got %d translations for %d texts",
			completion.ErrMalformedResponse, len(translated), len(missSources))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return nil, ErrSuperseded
	}
	for j, key := range missKeys {
		c.entries[key] = Entry{Original: missSources[j], Translated: translated[j]}
	}
	for i, it := range items {
		if j, ok := missIdx[it.Key]; ok {
			out[i] = translated[j]
		}
	}
	return out, nil
}

// Subscribe registers fn for background lookup updates. fn runs on the
// fetching goroutine and must not call back into the cache while holding
// its own locks. The returned func unsubscribes.
func (c *Cache) Subscribe(fn func(Update)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cache) subscribersLocked() []func(Update) {
	subs := make([]func(Update), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}
