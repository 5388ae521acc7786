// Package catalog keeps track of the files posted to the source channel so
// they can be requested by code or looked up by title.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Asmamaw-kas/MYBOT/internal/store"
	"github.com/Asmamaw-kas/MYBOT/internal/telegram"
)

const itemPrefix = "item/"

// maxSearchResults caps how many entries Search returns.
const maxSearchResults = 5

// Entry is a single item in the catalog. Code is the message ID of the post
// in the source channel, which doubles as the request code users send to
// the bot.
type Entry struct {
	Code    int64     `json:"code"`
	Title   string    `json:"title"`
	Kind    string    `json:"kind"` // "document", "audio", "video" or "text"
	AddedAt time.Time `json:"added_at"`
}

// Catalog is an in-memory index of channel posts, persisted through a
// store.Store so it survives restarts.
type Catalog struct {
	store store.Store

	mu      sync.RWMutex
	entries map[int64]Entry
}

// Open loads the catalog from s. The catalog keeps a reference to s and
// writes every remembered entry through to it.
func Open(ctx context.Context, s store.Store) (*Catalog, error) {
	c := &Catalog{
		store:   s,
		entries: make(map[int64]Entry),
	}
	items, err := s.List(ctx, itemPrefix)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	for key, val := range items {
		var e Entry
		if err := json.Unmarshal(val, &e); err != nil {
			return nil, fmt.Errorf("catalog: corrupted entry %q: %w", key, err)
		}
		c.entries[e.Code] = e
	}
	return c, nil
}

// Len returns the number of entries in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Remember adds an entry to the catalog, replacing any previous entry with
// the same code, and persists it.
func (c *Catalog) Remember(ctx context.Context, e Entry) error {
	if e.Code == 0 {
		return fmt.Errorf("catalog: entry has no code")
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, itemPrefix+strconv.FormatInt(e.Code, 10), val); err != nil {
		return fmt.Errorf("catalog: persist entry %d: %w", e.Code, err)
	}
	c.mu.Lock()
	c.entries[e.Code] = e
	c.mu.Unlock()
	return nil
}

// Lookup returns the entry with the given code.
func (c *Catalog) Lookup(code int64) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

// Search returns up to maxSearchResults entries whose titles match query,
// best matches first. Matching is case-insensitive: entries sharing words
// with the query rank by how many they share, and a plain substring match
// counts as a hit too.
func (c *Catalog) Search(query string) []Entry {
	qtokens := tokenize(query)
	qlower := strings.ToLower(strings.TrimSpace(query))
	if len(qtokens) == 0 {
		return nil
	}

	type scored struct {
		entry Entry
		score int
	}
	var matches []scored

	c.mu.RLock()
	for _, e := range c.entries {
		score := overlap(qtokens, tokenize(e.Title))
		if score == 0 && qlower != "" && strings.Contains(strings.ToLower(e.Title), qlower) {
			score = 1
		}
		if score > 0 {
			matches = append(matches, scored{e, score})
		}
	}
	c.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entry.Code < matches[j].entry.Code
	})

	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
	}
	res := make([]Entry, len(matches))
	for i, m := range matches {
		res[i] = m.entry
	}
	return res
}

func tokenize(s string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,;:!?()[]\"'")
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func overlap(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	var n int
	for _, t := range a {
		if set[t] {
			n++
		}
	}
	return n
}

// FromMessage builds an Entry from a channel post. The title comes from the
// caption if there is one, then from file metadata, then from the first line
// of the message text.
func FromMessage(m *telegram.Message) Entry {
	e := Entry{
		Code:    m.ID,
		Kind:    "text",
		AddedAt: time.Unix(m.Date, 0).UTC(),
	}
	switch {
	case m.Document != nil:
		e.Kind = "document"
		e.Title = m.Document.FileName
	case m.Audio != nil:
		e.Kind = "audio"
		e.Title = m.Audio.Title
		if e.Title == "" {
			e.Title = m.Audio.FileName
		}
	case m.Video != nil:
		e.Kind = "video"
		e.Title = m.Video.FileName
	}
	if m.Caption != "" {
		e.Title = firstLine(m.Caption)
	}
	if e.Title == "" && m.Text != "" {
		e.Title = firstLine(m.Text)
	}
	return e
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
