// Package cache stores finished translations under gomtl.CacheKey keys.
//
// Every cache here satisfies gomtl.TranslationCache and can be handed to
// gomtl.WithCache. Caches that can list their contents also implement
// Enumerable, which is what Exporter needs.
package cache

import "github.com/ZaguanLabs/gomtl"

// TranslationCache is the cache contract consumed by gomtl.Translator.
type TranslationCache = gomtl.TranslationCache

// Enumerable is a cache whose live entries can be listed.
type Enumerable interface {
	TranslationCache
	Entries() (map[string]string, error)
}
