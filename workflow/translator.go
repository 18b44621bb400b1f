/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package workflow

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxSuggestionDistance bounds how far a known code may be from an unmapped one and
// still be offered as a suggestion.
const maxSuggestionDistance = 3

// Translate resolves a vendor status code into a canonical path, scoped to the
// application's current phase and stage.
//
// A "::STATUS" or bare mapping resolves against the current phase/stage passed in,
// not the map leaf it was declared under. A code that is itself a qualified path known
// to the graph passes through unchanged, so partners that already speak canonical
// paths need no map entries.
func (g *Graph) Translate(phase, stage, source, code string) (Path, error) {
	if scope, ok := g.external[scopeKey(phase, stage)]; ok {
		if mapped, ok := scope.entries[externalKey(source, code)]; ok {
			target, err := ParsePath(mapped)
			if err != nil {
				return Path{}, err
			}
			target = target.Within(phase, stage)
			if !g.Has(target) {
				return Path{}, unknownStatus(g.code, target)
			}
			return target, nil
		}
	}

	if p, err := ParsePath(code); err == nil && p.Kind == Qualified && g.Has(p) {
		return p, nil
	}

	return Path{}, &UnmappedStatusError{
		Grant:      g.code,
		Phase:      phase,
		Stage:      stage,
		Source:     normaliseSource(source),
		Code:       code,
		Suggestion: g.suggest(phase, stage, source, code),
	}
}

// KnownExternalCodes lists the vendor codes mapped for a source within a phase/stage.
func (g *Graph) KnownExternalCodes(phase, stage, source string) []string {
	scope, ok := g.external[scopeKey(phase, stage)]
	if !ok {
		return nil
	}
	return append([]string(nil), scope.codes[normaliseSource(source)]...)
}

func (g *Graph) suggest(phase, stage, source, code string) string {
	best := ""
	bestDistance := maxSuggestionDistance + 1
	needle := []rune(strings.ToLower(strings.TrimSpace(code)))
	for _, known := range g.KnownExternalCodes(phase, stage, source) {
		d := levenshtein.DistanceForStrings(needle, []rune(strings.ToLower(known)), levenshtein.DefaultOptions)
		if d < bestDistance {
			best, bestDistance = known, d
		}
	}
	return best
}
