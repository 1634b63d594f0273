// Package router pulls URLs out of free text and sorts them into handling categories.
//
// Categories are resolved through an ordered rule table. A new kind of link is
// supported by appending a Rule and registering a handler for its LinkType with the
// scheduler; existing rules stay untouched.
package router

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

type LinkType string

const (
	Direct  LinkType = "direct"
	Unknown LinkType = "unknown"
)

const minURLLength = 10

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"')\]]+`)

var directExtensions = []string{
	".mp4", ".mkv", ".avi", ".mov", ".webm",
	".zip", ".rar", ".7z", ".tar", ".gz",
	".pdf", ".doc", ".docx", ".xls", ".xlsx",
	".jpg", ".jpeg", ".png", ".gif", ".webp",
	".mp3", ".wav", ".flac", ".ogg",
	".apk", ".exe", ".dmg",
	".csv", ".json", ".xml",
}

type Rule struct {
	Type  LinkType
	Match func(rawURL string) bool
}

type Routed struct {
	URL  string
	Type LinkType
}

type Router struct {
	rules    []Rule
	fallback LinkType
}

// New builds a router that falls back to the given type when no rule matches.
func New(fallback LinkType, rules ...Rule) *Router {
	return &Router{rules: rules, fallback: fallback}
}

// Default knows direct file extensions and, lacking other handlers, treats every
// unmatched URL as a direct download too.
func Default() *Router {
	return New(Direct, Rule{Type: Direct, Match: HasDirectExtension})
}

func (r *Router) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

func (r *Router) Classify(rawURL string) LinkType {
	for _, rule := range r.rules {
		if rule.Match(rawURL) {
			return rule.Type
		}
	}
	return r.fallback
}

func (r *Router) Route(urls []string) []Routed {
	routed := make([]Routed, 0, len(urls))
	for _, u := range urls {
		linkType := r.Classify(u)
		routed = append(routed, Routed{URL: u, Type: linkType})
		log.Debug().Str("op", "router/classify").Msgf("Classified %s -> %s", u, linkType)
	}
	return routed
}

// HasDirectExtension checks the query-stripped, lower-cased URL against known file types.
func HasDirectExtension(rawURL string) bool {
	pathLower := strings.ToLower(strings.SplitN(rawURL, "?", 2)[0])
	for _, ext := range directExtensions {
		if strings.HasSuffix(pathLower, ext) {
			return true
		}
	}
	return false
}

// ExtractURLs returns http(s) URLs in order of appearance, duplicates included.
func ExtractURLs(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	cleaned := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimRight(u, ".,;:!?)")
		if utf8.RuneCountInString(u) > minURLLength {
			cleaned = append(cleaned, u)
		}
	}
	log.Info().Str("op", "router/extract").Msgf("Extracted %d URL(s) from input text", len(cleaned))
	return cleaned
}
