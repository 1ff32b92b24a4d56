// Package guard blocks messages that contain denylisted terms. It is a
// heuristic, not a moderation system.
package guard

import (
	"bufio"
	"context"
	"os"
	"strings"
	"unicode"

	"anonuplift/internal/logging"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultTerms covers bullying, self-harm and common profanity.
var DefaultTerms = []string{
	"hate", "stupid", "ugly", "fat", "dumb", "idiot", "moron",
	"kill", "die", "suicide", "self-harm", "bully", "harass",
	"fuck", "shit", "bitch", "bastard", "asshole", "cunt",
	"dick", "slut", "whore", "retard", "loser", "kys",
}

type Guard struct {
	// phrases holds each term split into folded word tokens.
	phrases [][]string
	log     logging.Logger
}

// New builds a guard from terms.
func New(terms []string, log logging.Logger) *Guard {
	g := &Guard{log: log}
	seen := map[string]struct{}{}
	for _, t := range terms {
		words := tokenize(t)
		if len(words) == 0 {
			continue
		}
		k := strings.Join(words, " ")
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		g.phrases = append(g.phrases, words)
	}
	return g
}

// Load builds a guard from DefaultTerms plus the terms in path, one per
// line with # comments. When path is set but unreadable only the extra
// terms are skipped; DefaultTerms still apply.
func Load(path string, log logging.Logger) *Guard {
	if path == "" {
		return New(DefaultTerms, log)
	}

	extra, err := readTerms(path)
	if err != nil {
		log.Error(context.Background(), "content denylist failed to load; using built-in terms only", "path", path, "err", err)
		return New(DefaultTerms, log)
	}
	return New(append(append([]string{}, DefaultTerms...), extra...), log)
}

func readTerms(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Len reports how many distinct terms are loaded.
func (g *Guard) Len() int { return len(g.phrases) }

// Blocked reports whether text contains a denylisted term.
func (g *Guard) Blocked(ctx context.Context, text string) bool {
	words := tokenize(text)
	for _, p := range g.phrases {
		if containsRun(words, p) {
			g.log.Debug(ctx, "message blocked by content guard")
			return true
		}
	}
	return false
}

func containsRun(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, w := range phrase {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// tokenize strips accents, case-folds and splits on anything that is not a
// letter or digit.
func tokenize(s string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if plain, _, err := transform.String(t, s); err == nil {
		s = plain
	}
	s = cases.Fold().String(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
