package resource

import (
	"github.com/artpar/resrun/core/value"
)

// buildTable computes which base provides each inherited property. Two
// bases providing the same name collide unless they provide the same
// resource or equivalent definitions; collisions stay unresolved until the
// property is overridden.
func (r *Resource) buildTable() {
	r.table = make(map[string]int)
	r.tableKeys = nil
	r.ambiguous = nil

	for i, b := range r.bases {
		for _, name := range b.Keys() {
			if candidates, ok := r.ambiguous[name]; ok {
				if !r.sameProperty(candidates[0], i, name) {
					r.ambiguous[name] = append(candidates, i)
				}
				continue
			}
			prev, ok := r.table[name]
			if !ok {
				r.table[name] = i
				r.tableKeys = append(r.tableKeys, name)
				continue
			}
			if prev == i || r.sameProperty(prev, i, name) {
				continue
			}
			if r.ambiguous == nil {
				r.ambiguous = make(map[string][]int)
			}
			r.ambiguous[name] = []int{prev, i}
			delete(r.table, name)
		}
	}
}

func (r *Resource) sameProperty(i, j int, name string) bool {
	a, errA := r.bases[i].GetChild(name)
	b, errB := r.bases[j].GetChild(name)
	if errA != nil || errB != nil || a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	return a.kind == b.kind &&
		value.Equal(a.Value(), b.Value()) &&
		value.Equal(a.Serialize(), b.Serialize())
}

// linearize returns the resource followed by its ancestors, depth-first in
// base order, each ancestor once.
func (r *Resource) linearize() []*Resource {
	var out []*Resource
	seen := make(map[*Resource]bool)
	var walk func(x *Resource)
	walk = func(x *Resource) {
		if seen[x] {
			return
		}
		seen[x] = true
		out = append(out, x)
		for _, b := range x.bases {
			walk(b)
		}
	}
	walk(r)
	return out
}

// FindBase walks the ancestors depth-first and returns the first one
// satisfying pred, or nil.
func (r *Resource) FindBase(pred func(*Resource) bool) *Resource {
	for _, a := range r.linearize()[1:] {
		if pred(a) {
			return a
		}
	}
	return nil
}

// Extend returns a new resource whose sole base is r. Writes to the
// extension shadow r's properties without modifying r.
func (r *Resource) Extend() *Resource {
	e := &Resource{
		env:     r.env,
		dir:     r.dir,
		key:     r.key,
		parent:  r.parent,
		kind:    r.kind,
		imports: []any{r},
		bases:   []*Resource{r},
	}
	if r.kind.IsCallable() {
		e.method = &methodSpec{}
	}
	e.buildTable()
	return e
}
