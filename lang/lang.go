// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package lang provides localized strings for gateway components.
//
// Strings are looked up by key in a Catalog and formatted for the language
// requested by the remote entity (normally the xml:lang attribute of the
// stanza being answered).
// Keys that are missing from every table are not an error: lookups fall back
// to the raw key so that a missing translation never breaks a response.
package lang // import "mellium.im/gateway/lang"

import (
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Catalog is a set of string tables, one per language.
// The zero value is not usable, use New or Default instead.
type Catalog struct {
	mu       sync.RWMutex
	fallback language.Tag
	builder  *catalog.Builder
	tags     []language.Tag
	keys     map[language.Tag]map[string]struct{}
	matcher  language.Matcher
}

// New returns an empty catalog that falls back to the given language when a
// key has no translation in the requested language.
func New(fallback language.Tag) *Catalog {
	return &Catalog{
		fallback: fallback,
		builder:  catalog.NewBuilder(catalog.Fallback(fallback)),
		keys:     make(map[language.Tag]map[string]struct{}),
	}
}

// Default returns a catalog populated with the built in English and French
// tables.
// English is the fallback language.
func Default() *Catalog {
	c := New(language.English)
	for tag, table := range builtin {
		c.SetTable(tag, table)
	}
	return c
}

// Set adds or replaces a single string.
// Format verbs are those understood by fmt.
func (c *Catalog) Set(tag language.Tag, key, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// SetString only fails on malformed messages, which plain strings are not.
	_ = c.builder.SetString(tag, key, msg)
	keys, ok := c.keys[tag]
	if !ok {
		keys = make(map[string]struct{})
		c.keys[tag] = keys
		c.tags = append(c.tags, tag)
		c.matcher = nil
	}
	keys[key] = struct{}{}
}

// SetTable adds every string of table for the given language.
func (c *Catalog) SetTable(tag language.Tag, table map[string]string) {
	for k, v := range table {
		c.Set(tag, k, v)
	}
}

// Printer returns a printer for the best match of the language code lang.
// An empty or unparsable code selects the fallback language.
func (c *Catalog) Printer(lang string) Printer {
	c.mu.Lock()
	if c.matcher == nil {
		tags := append([]language.Tag{c.fallback}, c.tags...)
		c.matcher = language.NewMatcher(tags)
	}
	matcher := c.matcher
	c.mu.Unlock()

	tag := c.fallback
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			_, idx, conf := matcher.Match(t)
			if conf != language.No && idx > 0 {
				c.mu.RLock()
				tag = c.tags[idx-1]
				c.mu.RUnlock()
			}
		}
	}

	return Printer{
		cat: c,
		tag: tag,
		p:   message.NewPrinter(tag, message.Catalog(c.builder)),
		fb:  message.NewPrinter(c.fallback, message.Catalog(c.builder)),
	}
}

// source returns the language whose table holds key, preferring tag over the
// fallback language.
func (c *Catalog) source(tag language.Tag, key string) (language.Tag, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.keys[tag][key]; ok {
		return tag, true
	}
	if _, ok := c.keys[c.fallback][key]; ok {
		return c.fallback, true
	}
	return language.Und, false
}

// Printer formats localized strings for a single language.
type Printer struct {
	cat *Catalog
	tag language.Tag
	p   *message.Printer
	fb  *message.Printer
}

// Tag returns the language selected for the printer.
func (p Printer) Tag() language.Tag {
	return p.tag
}

// Sprintf formats the string stored under key.
// Keys missing from the table of the printer language are taken from the
// fallback table.
// If no table contains key, key itself is used as the format.
func (p Printer) Sprintf(key string, a ...interface{}) string {
	if s, ok := p.Lookup(key, a...); ok {
		return s
	}
	if p.p == nil {
		return key
	}
	return p.p.Sprintf(key, a...)
}

// Lookup is like Sprintf but reports whether key was found.
// When it was not, the empty string is returned.
func (p Printer) Lookup(key string, a ...interface{}) (string, bool) {
	if p.cat == nil {
		return "", false
	}
	tag, ok := p.cat.source(p.tag, key)
	if !ok {
		return "", false
	}
	if tag != p.tag && p.fb != nil {
		return p.fb.Sprintf(key, a...), true
	}
	return p.p.Sprintf(key, a...), true
}

// LookupDefault is like Lookup but returns def when key is missing.
func (p Printer) LookupDefault(key, def string, a ...interface{}) string {
	if s, ok := p.Lookup(key, a...); ok {
		return s
	}
	return def
}
