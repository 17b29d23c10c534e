// Package geo decides whether a funding opportunity is geographically
// relevant, given the region lists extracted by the model. Broad
// classifications ("Africa", "Global") over-match, so a specific country in
// the eligible list is treated as stronger evidence than a general scope:
// when the specific countries do not include a target, the posting is
// rejected even if a general scope nominally matches.
package geo

import "strings"

// Classification is the structured output of the region-extraction model call.
type Classification struct {
	Eligible []string `json:"eligible"`
	Excluded []string `json:"excluded"`
}

// Rules holds the normalized target and general-scope sets.
type Rules struct {
	targets  map[string]struct{}
	generals map[string]struct{}
}

func NewRules(targets, generals []string) Rules {
	r := Rules{
		targets:  make(map[string]struct{}, len(targets)),
		generals: make(map[string]struct{}, len(generals)),
	}
	for _, t := range targets {
		r.targets[normalize(t)] = struct{}{}
	}
	for _, g := range generals {
		r.generals[normalize(g)] = struct{}{}
	}
	return r
}

// Relevant applies the resolution rules in order of evidence strength and
// returns the decision with a human-readable reason for the audit log.
func (r Rules) Relevant(c Classification) (bool, string) {
	eligible := normalizeAll(c.Eligible)
	excluded := normalizeAll(c.Excluded)

	for _, e := range excluded {
		if _, ok := r.targets[e]; ok {
			return false, "target region explicitly excluded: " + e
		}
	}

	for _, e := range eligible {
		if _, ok := r.targets[e]; ok {
			return true, "target region explicitly eligible: " + e
		}
	}

	// Specifics over generals: a concrete non-target country beats any
	// general scope that happens to be listed alongside it.
	var specifics []string
	for _, e := range eligible {
		if _, ok := r.generals[e]; !ok {
			specifics = append(specifics, e)
		}
	}
	if len(specifics) > 0 {
		return false, "specific regions exclude target: " + strings.Join(specifics, ", ")
	}

	for _, e := range eligible {
		if _, ok := r.generals[e]; ok {
			return true, "general scope matches: " + e
		}
	}

	return false, "no relevant geographic scope found"
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, normalize(s))
	}
	return out
}
