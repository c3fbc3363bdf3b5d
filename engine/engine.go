package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elum-utils/warden/models"
)

// DefaultPatterns match the two slurs the moderator ships with. Each letter
// class absorbs common leetspeak substitutes and tolerates punctuation in between.
var DefaultPatterns = []string{
	`n+\W*[i1!]+\W*[gq9]+\W*[e3a]+\W*[r]+`,
	`f+\W*[a@4]+\W*[gq9]+\W*[o0]+\W*[t]+`,
}

// Stats contains runtime in-memory engine metrics.
type Stats struct {
	PatternCount     int64
	LastLookupNanos  int64
	TotalLookups     int64
	TotalMatches     int64
	LastReloadNanos  int64
	TotalReloadCount int64
}

type compiled struct {
	source string
	re     *regexp.Regexp
}

// Engine holds a compiled pattern set and tests text against it.
type Engine struct {
	mu       sync.RWMutex
	patterns []compiled

	lastLookupNanos atomic.Int64
	totalLookups    atomic.Int64
	totalMatches    atomic.Int64
	lastReloadNanos atomic.Int64
	totalReloads    atomic.Int64
}

// New creates an engine without patterns.
func New() *Engine {
	return &Engine{}
}

// NewDefault creates an engine loaded with DefaultPatterns.
func NewDefault() *Engine {
	e := New()
	if err := e.Load(DefaultPatterns); err != nil {
		panic(err)
	}
	return e
}

// Load compiles patterns and replaces the current set atomically.
// Blank and duplicate patterns are skipped; one invalid pattern rejects the whole list.
func (e *Engine) Load(patterns []string) error {
	start := time.Now()
	next := make([]compiled, 0, len(patterns))
	seen := make(map[string]struct{}, len(patterns))
	for i, p := range patterns {
		src := strings.TrimSpace(p)
		if src == "" {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return fmt.Errorf("engine: pattern %d: %w", i, err)
		}
		seen[src] = struct{}{}
		next = append(next, compiled{source: src, re: re})
	}

	e.mu.Lock()
	e.patterns = next
	e.mu.Unlock()

	e.lastReloadNanos.Store(time.Since(start).Nanoseconds())
	e.totalReloads.Add(1)
	return nil
}

// Count returns the number of loaded patterns.
func (e *Engine) Count() int {
	e.mu.RLock()
	n := len(e.patterns)
	e.mu.RUnlock()
	return n
}

// Patterns returns the loaded pattern sources in evaluation order.
func (e *Engine) Patterns() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.patterns))
	for _, p := range e.patterns {
		out = append(out, p.source)
	}
	e.mu.RUnlock()
	return out
}

// Detect tests every pattern against the lowercased text and its normalized
// form and stops at the first match.
func (e *Engine) Detect(text string) models.Verdict {
	start := time.Now()
	defer func() {
		e.lastLookupNanos.Store(time.Since(start).Nanoseconds())
		e.totalLookups.Add(1)
	}()

	miss := models.Verdict{Index: -1}
	raw := strings.ToLower(text)
	normalized := Normalize(raw)
	if normalized == "" {
		return miss
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for i, p := range e.patterns {
		form := models.Form("")
		switch {
		case p.re.MatchString(raw):
			form = models.FormRaw
		case p.re.MatchString(normalized):
			form = models.FormNormalized
		default:
			continue
		}
		e.totalMatches.Add(1)
		return models.Verdict{Matched: true, Index: i, Pattern: p.source, Form: form}
	}
	return miss
}

// Contains reports whether any pattern matches text.
func (e *Engine) Contains(text string) bool {
	return e.Detect(text).Matched
}

// Stats returns current metrics.
func (e *Engine) Stats() Stats {
	return Stats{
		PatternCount:     int64(e.Count()),
		LastLookupNanos:  e.lastLookupNanos.Load(),
		TotalLookups:     e.totalLookups.Load(),
		TotalMatches:     e.totalMatches.Load(),
		LastReloadNanos:  e.lastReloadNanos.Load(),
		TotalReloadCount: e.totalReloads.Load(),
	}
}
