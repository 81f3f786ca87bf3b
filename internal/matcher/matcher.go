// Package matcher resolves free-text names spoken by a caller (a location,
// practitioner, or service name) against a clinic's catalog. One scoring
// algorithm serves all three entity kinds; only the thresholds and the
// generic-token bonus vocabulary vary by kind.
package matcher

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which catalog is being matched against, since the
// generic-token bonus vocabulary and score thresholds differ by kind.
type Kind int

const (
	KindLocation Kind = iota
	KindPractitioner
	KindService
)

// thresholds holds the resolve/confirm cutoffs for a Kind. Locations and
// practitioners use 0.6 to confirm and 0.8 to resolve; services use 0.5 to
// confirm and 0.8 to resolve.
type thresholds struct {
	confirm float64 // score >= confirm && < resolve -> ask for confirmation
	resolve float64 // score >= resolve -> resolved outright
}

func thresholdsFor(kind Kind) thresholds {
	switch kind {
	case KindLocation:
		return thresholds{confirm: 0.6, resolve: 0.8}
	case KindPractitioner:
		return thresholds{confirm: 0.6, resolve: 0.8}
	case KindService:
		return thresholds{confirm: 0.5, resolve: 0.8}
	default:
		return thresholds{confirm: 0.6, resolve: 0.8}
	}
}

// genericTokens are the tokens that, for locations, bonus-score the primary
// candidate when the caller doesn't name a specific branch.
var genericTokens = map[string]bool{
	"main": true, "primary": true, "first": true, "central": true, "head": true, "office": true,
}

// Candidate is one catalog entry eligible for matching: a location,
// practitioner, or service. Ordinal gives the deterministic 1-based position
// used to resolve "location 2" / "site 3" style references.
type Candidate struct {
	ID        string
	Name      string
	Aliases   []string
	IsPrimary bool
	Ordinal   int
}

// MatchType classifies how confidently a query resolved to a candidate.
type MatchType string

const (
	HighConfidence   MatchType = "high_confidence"
	MediumConfidence MatchType = "medium_confidence"
	LowConfidence    MatchType = "low_confidence"
	NoMatch          MatchType = "no_match"
)

// Result is one scored candidate.
type Result struct {
	Candidate Candidate
	Score     float64
	MatchType MatchType
}

// Decision is the caller-facing policy outcome: resolve outright, ask for
// confirmation on the single best candidate, or present clarification
// options.
type Decision string

const (
	DecisionResolved     Decision = "resolved"
	DecisionConfirm      Decision = "confirm"
	DecisionClarify      Decision = "clarify"
	DecisionNoCandidates Decision = "no_candidates"
)

// Outcome is the full result of matching one query: the ranked candidates,
// the policy decision, and (for DecisionResolved/DecisionConfirm) the
// chosen candidate.
type Outcome struct {
	Decision   Decision
	Candidate  *Candidate
	Ranked     []Result
	Clarifying []Result // present only when Decision == DecisionClarify
}

// Match scores every candidate against query and applies the caller policy:
// score >= resolve threshold resolves outright; a score in [confirm,resolve)
// asks for confirmation on the best candidate; anything below confirm, or
// two or more candidates within 0.05 of the top score, returns clarification
// options.
func Match(kind Kind, query string, candidates []Candidate) Outcome {
	if len(candidates) == 0 {
		return Outcome{Decision: DecisionNoCandidates}
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := score(kind, query, c)
		results = append(results, Result{Candidate: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Candidate.IsPrimary != results[j].Candidate.IsPrimary {
			return results[i].Candidate.IsPrimary
		}
		return results[i].Candidate.Name < results[j].Candidate.Name
	})

	th := thresholdsFor(kind)
	for i := range results {
		results[i].MatchType = classify(results[i].Score, th)
	}

	top := results[0]
	within := func(r Result) bool { return top.Score-r.Score <= 0.05 }
	closeCount := 0
	for _, r := range results {
		if within(r) {
			closeCount++
		}
	}

	switch {
	case top.Score < th.confirm || closeCount >= 2:
		return Outcome{Decision: DecisionClarify, Ranked: results, Clarifying: clarifyCandidates(results, within)}
	case top.Score >= th.resolve:
		c := top.Candidate
		return Outcome{Decision: DecisionResolved, Candidate: &c, Ranked: results}
	default:
		c := top.Candidate
		return Outcome{Decision: DecisionConfirm, Candidate: &c, Ranked: results}
	}
}

func clarifyCandidates(results []Result, within func(Result) bool) []Result {
	var out []Result
	for _, r := range results {
		if within(r) {
			out = append(out, r)
		}
	}
	return out
}

func classify(score float64, th thresholds) MatchType {
	switch {
	case score >= th.resolve:
		return HighConfidence
	case score >= th.confirm:
		return MediumConfidence
	case score > 0:
		return LowConfidence
	default:
		return NoMatch
	}
}

// score computes the maximum of every scoring signal the algorithm defines,
// plus the primary tie-breaker bonus.
func score(kind Kind, query string, c Candidate) float64 {
	q := normalize(query)
	if q == "" {
		return 0
	}

	best := 0.0
	consider := func(s float64) {
		if s > best {
			best = s
		}
	}

	name := normalize(c.Name)
	if q == name {
		consider(1.0)
	}
	for _, alias := range c.Aliases {
		if q == normalize(alias) {
			consider(0.95)
		}
	}

	consider(substringContainment(q, name))
	for _, alias := range c.Aliases {
		consider(substringContainment(q, normalize(alias)))
	}

	consider(tokenContainment(q, name))

	if kind == KindLocation {
		if c.IsPrimary && hasGenericToken(q) {
			consider(0.8)
		}
		if n, ok := ordinalReference(q); ok && n == c.Ordinal {
			consider(0.8)
		}
	}

	if best > 0 && c.IsPrimary {
		best += 0.1
	}
	if best > 1.0 {
		best = 1.0
	}
	return best
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// substringContainment scores a containment match scaled by how much of the
// longer string the shorter one covers, capped at 0.8 so it can never
// outrank an exact or alias match.
func substringContainment(q, candidate string) float64 {
	if q == "" || candidate == "" {
		return 0
	}
	var shorter, longer string
	if len(q) <= len(candidate) {
		shorter, longer = q, candidate
	} else {
		shorter, longer = candidate, q
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	ratio := float64(len(shorter)) / float64(len(longer))
	score := ratio * 0.8
	if score > 0.8 {
		score = 0.8
	}
	return score
}

// tokenContainment scores how many of the query's tokens appear in the
// candidate's tokens (or vice versa), capped at 0.8.
func tokenContainment(q, candidate string) float64 {
	qTokens := strings.Fields(q)
	cTokens := strings.Fields(candidate)
	if len(qTokens) == 0 || len(cTokens) == 0 {
		return 0
	}
	cSet := make(map[string]bool, len(cTokens))
	for _, t := range cTokens {
		cSet[t] = true
	}
	matches := 0
	for _, t := range qTokens {
		if cSet[t] {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	ratio := float64(matches) / float64(max(len(qTokens), len(cTokens)))
	score := ratio * 0.8
	if score > 0.8 {
		score = 0.8
	}
	return score
}

func hasGenericToken(q string) bool {
	for _, t := range strings.Fields(q) {
		if genericTokens[t] {
			return true
		}
	}
	return false
}

// ordinalReference parses "location 2", "site 3" style queries into the
// referenced 1-based ordinal.
func ordinalReference(q string) (int, bool) {
	tokens := strings.Fields(q)
	for i, t := range tokens {
		if (t == "location" || t == "site") && i+1 < len(tokens) {
			if n, err := strconv.Atoi(tokens[i+1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
