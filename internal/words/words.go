// internal/words/words.go
//
// Word list management for the room engine.
//
// Responsibilities:
//   - Load per-language answer lists from an optional directory of
//     <lang>.txt files, falling back to embedded defaults.
//   - Normalize every word: uppercase, diacritics stripped, exactly five
//     ASCII letters, deduplicated.
//   - Supply random solution words and guess validation per language.
//
// Environment/config:
//   WORDS_DIR=/path/to/lists   optional override directory; each file named
//                              <lang>.txt replaces the embedded list for
//                              that language.
//
// Constraints:
//   • Words must normalize to exactly 5 letters A–Z.
//   • Lists are deduplicated preserving first occurrence.

package words

import (
	"bufio"
	"crypto/rand"
	"embed"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed en.txt de.txt
var embedded embed.FS

var (
	ErrUnknownLanguage = errors.New("words: unknown language")
	ErrNotEnoughWords  = errors.New("words: not enough words in list")
)

// Source holds normalized word lists keyed by language code.
// Immutable after Load, safe for concurrent use.
type Source struct {
	lists map[string][]string
	sets  map[string]map[string]struct{}
}

// Load builds a Source from the embedded lists, overridden per language by
// <lang>.txt files in dir when dir is non-empty.
func Load(dir string) (*Source, error) {
	s := &Source{
		lists: make(map[string][]string),
		sets:  make(map[string]map[string]struct{}),
	}

	entries, err := embedded.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read embedded lists: %w", err)
	}
	for _, e := range entries {
		lang := strings.TrimSuffix(e.Name(), ".txt")
		f, err := embedded.Open(e.Name())
		if err != nil {
			return nil, fmt.Errorf("open embedded %s: %w", e.Name(), err)
		}
		list, err := readList(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse embedded %s: %w", e.Name(), err)
		}
		s.install(lang, list)
	}

	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			lang := strings.TrimSuffix(filepath.Base(path), ".txt")
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", path, err)
			}
			list, err := readList(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			if len(list) > 0 {
				s.install(lang, list)
			}
		}
	}

	if len(s.lists) == 0 {
		return nil, errors.New("words: no lists loaded")
	}
	return s, nil
}

func (s *Source) install(lang string, list []string) {
	set := make(map[string]struct{}, len(list))
	deduped := make([]string, 0, len(list))
	for _, w := range list {
		if _, ok := set[w]; ok {
			continue
		}
		set[w] = struct{}{}
		deduped = append(deduped, w)
	}
	s.lists[lang] = deduped
	s.sets[lang] = set
}

// Random returns n distinct random words for a language.
func (s *Source) Random(lang string, n int) ([]string, error) {
	list, ok := s.lists[lang]
	if !ok {
		return nil, ErrUnknownLanguage
	}
	if n <= 0 || n > len(list) {
		return nil, ErrNotEnoughWords
	}
	out := make([]string, 0, n)
	seen := make(map[int]struct{}, n)
	for len(out) < n {
		nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
		if err != nil {
			return nil, err
		}
		i := int(nBig.Int64())
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, list[i])
	}
	return out, nil
}

// IsAllowed reports whether w is a valid guess for lang.
// The input is normalized before lookup.
func (s *Source) IsAllowed(lang, w string) bool {
	set, ok := s.sets[lang]
	if !ok {
		return false
	}
	_, ok = set[Normalize(w)]
	return ok
}

// Has reports whether a language list is loaded.
func (s *Source) Has(lang string) bool {
	_, ok := s.lists[lang]
	return ok
}

// Languages lists the loaded language codes, sorted.
func (s *Source) Languages() []string {
	out := make([]string, 0, len(s.lists))
	for lang := range s.lists {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Stats returns the word count per language.
func (s *Source) Stats() map[string]int {
	out := make(map[string]int, len(s.lists))
	for lang, list := range s.lists {
		out[lang] = len(list)
	}
	return out
}

// readList loads one word per line, skipping blanks and # comments, keeping
// only entries that normalize to valid five-letter words.
func readList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w := Normalize(line)
		if Valid(w) {
			out = append(out, w)
		}
	}
	return out, sc.Err()
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize uppercases w and strips diacritics (É→E, Ü→U). ß expands to SS
// before length validation.
func Normalize(w string) string {
	w = strings.ReplaceAll(strings.TrimSpace(w), "ß", "ss")
	stripped, _, err := transform.String(stripMarks, w)
	if err != nil {
		stripped = w
	}
	return strings.ToUpper(stripped)
}

// Valid reports whether w is exactly five letters A–Z.
func Valid(w string) bool {
	if len(w) != 5 {
		return false
	}
	for _, r := range w {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
