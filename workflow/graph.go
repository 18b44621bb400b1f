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

	"github.com/blnkfinance/grantflow/model"
)

// Graph is the compiled, read-only form of a grant definition. Nodes live in a flat
// arena and are indexed by qualified path and by bare status code; the grant document
// itself is never consulted or mutated after Compile.
type Graph struct {
	code     string
	nodes    []node
	index    map[Path]int
	byStatus map[string][]int
	initial  int
	external map[string]*externalScope
}

type node struct {
	path               Path
	rules              []rule
	processes          []string
	replacementAllowed bool
	outgoing           int
}

// rule is a normalised validFrom entry.
type rule struct {
	from      Path
	processes []string
}

type externalScope struct {
	entries map[string]string
	codes   map[string][]string
}

// Compile indexes a grant definition and validates its structural invariants.
func Compile(grant *model.Grant) (*Graph, error) {
	g := &Graph{
		code:     grant.Code,
		index:    make(map[Path]int),
		byStatus: make(map[string][]int),
		initial:  -1,
		external: make(map[string]*externalScope),
	}

	for _, phase := range grant.Phases {
		for _, stage := range phase.Stages {
			for _, status := range stage.Statuses {
				p := NewPath(phase.Code, stage.Code, status.Code)
				if phase.Code == "" || stage.Code == "" || status.Code == "" {
					return nil, invalidDefinition(grant.Code, "empty code at %s", p)
				}
				if _, exists := g.index[p]; exists {
					return nil, invalidDefinition(grant.Code, "duplicate status %s", p)
				}
				n := node{
					path:               p,
					processes:          append([]string(nil), status.Processes...),
					replacementAllowed: status.ReplacementAllowed,
				}
				for _, vf := range status.ValidFrom {
					from, err := ParsePath(vf.Code)
					if err != nil {
						return nil, invalidDefinition(grant.Code, "status %s: %v", p, err)
					}
					if from.Kind == Bare {
						from = from.Within(phase.Code, stage.Code)
					}
					n.rules = append(n.rules, rule{from: from, processes: append([]string(nil), vf.Processes...)})
				}
				idx := len(g.nodes)
				g.nodes = append(g.nodes, n)
				g.index[p] = idx
				g.byStatus[status.Code] = append(g.byStatus[status.Code], idx)
				if g.initial < 0 && len(n.rules) == 0 {
					g.initial = idx
				}
			}
		}
	}

	if err := g.linkPredecessors(); err != nil {
		return nil, err
	}
	if err := g.compileExternalMap(grant.ExternalStatusMap); err != nil {
		return nil, err
	}
	return g, nil
}

// linkPredecessors checks every rule points at an existing node and counts outgoing edges.
func (g *Graph) linkPredecessors() error {
	for _, n := range g.nodes {
		for _, r := range n.rules {
			preds := g.match(r.from)
			if len(preds) == 0 {
				return invalidDefinition(g.code, "status %s: predecessor %s does not exist", n.path, r.from)
			}
			for _, idx := range preds {
				g.nodes[idx].outgoing++
			}
		}
	}
	return nil
}

func (g *Graph) compileExternalMap(m model.ExternalStatusMap) error {
	for _, phase := range m.Phases {
		for _, stage := range phase.Stages {
			key := scopeKey(phase.Code, stage.Code)
			scope, ok := g.external[key]
			if !ok {
				scope = &externalScope{entries: make(map[string]string), codes: make(map[string][]string)}
				g.external[key] = scope
			}
			for _, st := range stage.Statuses {
				if _, err := ParsePath(st.MappedTo); err != nil {
					return invalidDefinition(g.code, "external status %s/%s in %s: %v", st.Source, st.Code, key, err)
				}
				entry := externalKey(st.Source, st.Code)
				if _, dup := scope.entries[entry]; dup {
					return invalidDefinition(g.code, "duplicate external status %s/%s in %s", st.Source, st.Code, key)
				}
				scope.entries[entry] = st.MappedTo
				src := normaliseSource(st.Source)
				scope.codes[src] = append(scope.codes[src], st.Code)
			}
		}
	}
	return nil
}

// match returns the nodes a predecessor reference designates.
func (g *Graph) match(p Path) []int {
	switch p.Kind {
	case Wildcard:
		return g.byStatus[p.Status]
	default:
		if idx, ok := g.index[NewPath(p.Phase, p.Stage, p.Status)]; ok {
			return []int{idx}
		}
		return nil
	}
}

// Code returns the grant code the graph was compiled from.
func (g *Graph) Code() string {
	return g.code
}

// Has reports whether the qualified path exists in the graph.
func (g *Graph) Has(p Path) bool {
	_, ok := g.index[NewPath(p.Phase, p.Stage, p.Status)]
	return ok
}

// InitialPath returns the first status that declares no predecessors.
func (g *Graph) InitialPath() (Path, error) {
	if g.initial < 0 {
		return Path{}, ErrNoInitialStatus
	}
	return g.nodes[g.initial].path, nil
}

// IsInitial reports whether p can only be entered as an initial status.
func (g *Graph) IsInitial(p Path) bool {
	idx, ok := g.index[NewPath(p.Phase, p.Stage, p.Status)]
	return ok && len(g.nodes[idx].rules) == 0
}

// IsTerminal reports whether no status in the graph can be entered from p.
func (g *Graph) IsTerminal(p Path) bool {
	idx, ok := g.index[NewPath(p.Phase, p.Stage, p.Status)]
	return ok && g.nodes[idx].outgoing == 0
}

// ReplacementAllowed reports the per-status replacement flag.
func (g *Graph) ReplacementAllowed(p Path) bool {
	idx, ok := g.index[NewPath(p.Phase, p.Stage, p.Status)]
	return ok && g.nodes[idx].replacementAllowed
}

// Successors lists the statuses reachable from p in one transition.
func (g *Graph) Successors(p Path) []Path {
	var out []Path
	for _, n := range g.nodes {
		for _, r := range n.rules {
			if r.matches(p) {
				out = append(out, n.path)
				break
			}
		}
	}
	return out
}

// ValidFrom returns the normalised predecessor references of a status.
func (g *Graph) ValidFrom(p Path) ([]Path, error) {
	idx, ok := g.index[NewPath(p.Phase, p.Stage, p.Status)]
	if !ok {
		return nil, unknownStatus(g.code, p)
	}
	out := make([]Path, 0, len(g.nodes[idx].rules))
	for _, r := range g.nodes[idx].rules {
		out = append(out, r.from)
	}
	return out, nil
}

func (r rule) matches(current Path) bool {
	if r.from.Kind == Wildcard {
		return r.from.Status == current.Status
	}
	return r.from.Equal(current)
}

func scopeKey(phase, stage string) string {
	return phase + pathSeparator + stage
}

func externalKey(source, code string) string {
	return normaliseSource(source) + "\x00" + strings.ToLower(strings.TrimSpace(code))
}

func normaliseSource(source string) string {
	return strings.ToUpper(strings.TrimSpace(source))
}
