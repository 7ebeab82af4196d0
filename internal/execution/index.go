package execution

import (
	"sort"
)

// idSet is an unordered set of identifiers.
type idSet[K ~string] map[K]struct{}

func (s idSet[K]) add(id K) { s[id] = struct{}{} }

func (s idSet[K]) remove(id K) { delete(s, id) }

func (s idSet[K]) has(id K) bool {
	_, ok := s[id]
	return ok
}

// partition indexes ids under a partition key such as a symbol or strategy.
type partition[P ~string, K ~string] map[P]idSet[K]

func (p partition[P, K]) add(key P, id K) {
	set, ok := p[key]
	if !ok {
		set = make(idSet[K])
		p[key] = set
	}
	set.add(id)
}

// get returns the set for key; nil when nothing is indexed under it.
func (p partition[P, K]) get(key P) idSet[K] {
	return p[key]
}

// intersect returns the sorted ids present in every set. It walks the
// smallest set and checks membership in the rest.
func intersect[K ~string](sets ...idSet[K]) []K {
	if len(sets) == 0 {
		return nil
	}
	smallest := 0
	for i, s := range sets {
		if len(s) < len(sets[smallest]) {
			smallest = i
		}
	}
	out := make([]K, 0, len(sets[smallest]))
	for id := range sets[smallest] {
		member := true
		for i, s := range sets {
			if i != smallest && !s.has(id) {
				member = false
				break
			}
		}
		if member {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedIDs[K ~string](s idSet[K]) []K {
	out := make([]K, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
