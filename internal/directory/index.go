package directory

import (
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/garyellow/osvita-occupancy/internal/sliceutil"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// MinQueryLength is the shortest accepted search query, in runes.
const MinQueryLength = 2

// Match is a search hit.
type Match struct {
	Type   string          `json:"type"`
	Label  string          `json:"label"`
	Entity upstream.Entity `json:"value"`
}

type indexed struct {
	entity upstream.Entity
	label  string
	folded string
}

// Index is a searchable copy of the last discovered groups and the last
// indexed teachers. It is safe for concurrent use; each Replace call swaps
// one directory at once.
type Index struct {
	mu       sync.RWMutex
	groups   []indexed
	teachers []indexed
	caser    cases.Caser
	casesMu  sync.Mutex
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{caser: cases.Fold()}
}

// Label is "<name> (<faculty>)" for groups and "<name> (<chair>)" for
// teachers, or the bare name when neither is known.
func Label(e upstream.Entity) string {
	if e.FacultyLabel == "" {
		return e.Name
	}
	return e.Name + " (" + e.FacultyLabel + ")"
}

// fold is guarded because a Caser keeps state between calls.
func (x *Index) fold(s string) string {
	x.casesMu.Lock()
	defer x.casesMu.Unlock()
	return x.caser.String(s)
}

func (x *Index) build(entities []upstream.Entity) []indexed {
	items := make([]indexed, 0, len(entities))
	for _, e := range entities {
		label := Label(e)
		items = append(items, indexed{entity: e, label: label, folded: x.fold(label)})
	}
	return items
}

// Replace installs a new group directory.
func (x *Index) Replace(entities []upstream.Entity) {
	items := x.build(entities)
	x.mu.Lock()
	x.groups = items
	x.mu.Unlock()
}

// ReplaceTeachers installs a new teacher directory. The same employee may
// appear once per chair.
func (x *Index) ReplaceTeachers(entities []upstream.Entity) {
	entities = sliceutil.Deduplicate(entities, func(e upstream.Entity) [2]string { return [2]string{e.ID, e.FacultyLabel} })
	items := x.build(entities)
	x.mu.Lock()
	x.teachers = items
	x.mu.Unlock()
}

// Len returns the number of indexed groups and teachers.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.groups) + len(x.teachers)
}

// Teachers returns the number of indexed teachers.
func (x *Index) Teachers() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.teachers)
}

// Search returns up to limit entries whose label contains q, ignoring
// case. Groups come first, each directory in its own order. limit <= 0
// means no limit.
func (x *Index) Search(q string, limit int) []Match {
	q = strings.TrimSpace(q)
	out := []Match{}
	if utf8.RuneCountInString(q) < MinQueryLength {
		return out
	}
	needle := x.fold(q)

	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, dir := range [][]indexed{x.groups, x.teachers} {
		for _, it := range dir {
			if !strings.Contains(it.folded, needle) {
				continue
			}
			out = append(out, Match{Type: kindOf(it.entity), Label: it.label, Entity: it.entity})
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

func kindOf(e upstream.Entity) string {
	if e.IsTeacher() {
		return upstream.KindTeacher
	}
	return upstream.KindGroup
}
