package inventory

import (
	"regexp"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/moolen/triage/internal/models"
)

// Detection confidence tiers.
const (
	confidenceCanonical = 1.0
	confidenceAlias     = 0.8
	confidenceFuzzy     = 0.6

	// fuzzyMinAliasLen guards short aliases against spurious one-edit
	// matches ("db01" vs "db02" are different hosts).
	fuzzyMinAliasLen = 5
	fuzzyMaxDistance = 1
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_\-\.]+`)

// EntityDetector scans input text for known system identifiers. Safe for
// concurrent use once constructed.
type EntityDetector struct {
	inv         *Inventory
	enableFuzzy bool
}

// NewDetector builds a detector over the inventory. Fuzzy matching adds
// edit-distance tolerance for typos at a lower confidence tier.
func NewDetector(inv *Inventory, enableFuzzy bool) *EntityDetector {
	return &EntityDetector{inv: inv, enableFuzzy: enableFuzzy}
}

type candidate struct {
	ref models.SystemRef
}

// Detect returns the systems referenced by the text, ordered by first
// occurrence, then by match length descending. Each canonical name appears
// at most once, keeping its highest-confidence match. An empty result is
// valid and means "unknown system".
func (d *EntityDetector) Detect(text string) []models.SystemRef {
	lower := strings.ToLower(text)

	var candidates []candidate
	for i := range d.inv.Systems {
		sys := &d.inv.Systems[i]
		candidates = append(candidates, d.matchSystem(lower, sys)...)
	}
	if d.enableFuzzy {
		candidates = append(candidates, d.fuzzyMatches(lower)...)
	}

	// Overlapping matches at the same span: prefer the longer alias,
	// then higher confidence.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].ref, candidates[j].ref
		if a.MatchStart != b.MatchStart {
			return a.MatchStart < b.MatchStart
		}
		if la, lb := a.MatchEnd-a.MatchStart, b.MatchEnd-b.MatchStart; la != lb {
			return la > lb
		}
		return a.Confidence > b.Confidence
	})

	// Deduplicate per canonical name, keeping the highest confidence and
	// the earliest occurrence at that confidence.
	best := make(map[string]models.SystemRef)
	order := []string{}
	for _, c := range candidates {
		prev, seen := best[c.ref.CanonicalName]
		if !seen {
			best[c.ref.CanonicalName] = c.ref
			order = append(order, c.ref.CanonicalName)
			continue
		}
		if c.ref.Confidence > prev.Confidence {
			best[c.ref.CanonicalName] = c.ref
		}
	}

	refs := make([]models.SystemRef, 0, len(order))
	for _, name := range order {
		refs = append(refs, best[name])
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].MatchStart != refs[j].MatchStart {
			return refs[i].MatchStart < refs[j].MatchStart
		}
		return refs[i].MatchEnd-refs[i].MatchStart > refs[j].MatchEnd-refs[j].MatchStart
	})
	return refs
}

// matchSystem finds exact (case-insensitive) occurrences of the canonical
// name and every alias.
func (d *EntityDetector) matchSystem(lower string, sys *System) []candidate {
	var out []candidate
	emit := func(needle string, confidence float64) {
		needleLower := strings.ToLower(needle)
		for _, start := range findOccurrences(lower, needleLower) {
			out = append(out, candidate{ref: models.SystemRef{
				CanonicalName: sys.Name,
				MatchedAlias:  needle,
				MatchStart:    start,
				MatchEnd:      start + len(needleLower),
				Confidence:    confidence,
			}})
		}
	}

	emit(sys.Name, confidenceCanonical)
	for _, alias := range sys.Aliases {
		emit(alias, confidenceAlias)
	}
	return out
}

// fuzzyMatches compares each text token against aliases of sufficient
// length with an edit-distance budget of one.
func (d *EntityDetector) fuzzyMatches(lower string) []candidate {
	// Tokens that exactly match a known identifier never fuzzy-match a
	// sibling one edit away.
	exact := make(map[string]bool)
	for i := range d.inv.Systems {
		exact[strings.ToLower(d.inv.Systems[i].Name)] = true
		for _, alias := range d.inv.Systems[i].Aliases {
			exact[strings.ToLower(alias)] = true
		}
	}

	var out []candidate
	for _, loc := range tokenRe.FindAllStringIndex(lower, -1) {
		token := lower[loc[0]:loc[1]]
		if len(token) < fuzzyMinAliasLen || exact[token] {
			continue
		}
		for i := range d.inv.Systems {
			sys := &d.inv.Systems[i]
			for _, alias := range append([]string{sys.Name}, sys.Aliases...) {
				aliasLower := strings.ToLower(alias)
				if len(aliasLower) < fuzzyMinAliasLen || token == aliasLower {
					continue
				}
				// DefaultOptions charges 2 for a substitution, which would
			// put one-character typos outside the distance budget.
			dist := levenshtein.DistanceForStrings([]rune(token), []rune(aliasLower), levenshtein.DefaultOptionsWithSub)
				if dist <= fuzzyMaxDistance {
					out = append(out, candidate{ref: models.SystemRef{
						CanonicalName: sys.Name,
						MatchedAlias:  alias,
						MatchStart:    loc[0],
						MatchEnd:      loc[1],
						Confidence:    confidenceFuzzy,
					}})
				}
			}
		}
	}
	return out
}

// findOccurrences returns the start offsets of needle in haystack where the
// match is not embedded in a longer identifier.
func findOccurrences(haystack, needle string) []int {
	if needle == "" {
		return nil
	}
	var starts []int
	for idx := 0; ; {
		pos := strings.Index(haystack[idx:], needle)
		if pos < 0 {
			break
		}
		start := idx + pos
		end := start + len(needle)
		if boundaryAt(haystack, start-1) && boundaryAt(haystack, end) {
			starts = append(starts, start)
		}
		idx = start + 1
	}
	return starts
}

// boundaryAt reports whether position i is outside the text or holds a
// character that cannot be part of an identifier.
func boundaryAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_')
}
