// Package occupancy folds lessons into a room × time-slot grid.
package occupancy

import (
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/garyellow/osvita-occupancy/internal/stringutil"
	"github.com/garyellow/osvita-occupancy/internal/upstream"
)

// UnknownBuilding marks rooms whose name carries no building prefix.
const UnknownBuilding = "?"

var buildingPattern = regexp.MustCompile(`^(\d+|[a-zA-Zа-яА-ЯіІїЇєЄґҐ0-9]+)[-\s]`)

// BuildingTag returns the leading token of a room name ("2-204" → "2").
// It is a display hint only.
func BuildingTag(room string) string {
	if m := buildingPattern.FindStringSubmatch(room); m != nil {
		return m[1]
	}
	return UnknownBuilding
}

// Cell is one occupied room/slot.
type Cell struct {
	Groups     []string `json:"groups"`
	Instructor string   `json:"teacher,omitempty"`
	Discipline string   `json:"discipline,omitempty"`
}

// Label joins the group labels for display.
func (c Cell) Label() string {
	return strings.Join(c.Groups, ", ")
}

// Room is one row of a snapshot. Empty slots are absent.
type Room struct {
	Name     string       `json:"name"`
	Building string       `json:"building"`
	Slots    map[int]Cell `json:"slots"`
}

// Snapshot is a grid sorted by room name.
type Snapshot []Room

// Occupied counts the occupied cells.
func (s Snapshot) Occupied() int {
	n := 0
	for _, r := range s {
		n += len(r.Slots)
	}
	return n
}

type occupant struct {
	groups     map[string]struct{}
	order      []string
	instructor string
	discipline string
}

type room struct {
	building string
	slots    map[int]*occupant
}

// Grid is safe for concurrent use.
type Grid struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewGrid creates an empty grid.
func NewGrid() *Grid {
	return &Grid{rooms: make(map[string]*room)}
}

// Fold places one lesson of entity on the grid. Lessons without a room or
// with a time label that has no leading number are skipped. The returned
// value reports whether the lesson was placed.
func (g *Grid) Fold(entity upstream.Entity, lesson upstream.Lesson) bool {
	name := strings.TrimSpace(lesson.Room)
	if name == "" {
		return false
	}
	slot, ok := stringutil.LeadingInt(lesson.TimeSlot)
	if !ok {
		return false
	}

	label := strings.TrimSpace(lesson.GroupLabel)
	if label == "" {
		label = entity.Name
	}
	if label == "" {
		label = entity.ID
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[name]
	if !ok {
		r = &room{building: BuildingTag(name), slots: make(map[int]*occupant)}
		g.rooms[name] = r
	}
	occ, ok := r.slots[slot]
	if !ok {
		occ = &occupant{
			groups:     make(map[string]struct{}),
			instructor: lesson.Teacher(),
			discipline: lesson.Discipline,
		}
		r.slots[slot] = occ
	}
	if _, dup := occ.groups[label]; !dup {
		occ.groups[label] = struct{}{}
		occ.order = append(occ.order, label)
	}
	return true
}

// Len returns the number of rooms.
func (g *Grid) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Snapshot copies the grid, sorting rooms with numeric-aware collation so
// "2-9" sorts before "2-10".
func (g *Grid) Snapshot() Snapshot {
	g.mu.Lock()
	out := make(Snapshot, 0, len(g.rooms))
	for name, r := range g.rooms {
		row := Room{Name: name, Building: r.building, Slots: make(map[int]Cell, len(r.slots))}
		for n, occ := range r.slots {
			row.Slots[n] = Cell{
				Groups:     slices.Clone(occ.order),
				Instructor: occ.instructor,
				Discipline: occ.discipline,
			}
		}
		out = append(out, row)
	}
	g.mu.Unlock()

	SortRooms(out)
	return out
}

// SortRooms orders rooms by name with numeric-aware collation.
func SortRooms(rooms Snapshot) {
	c := collate.New(language.Ukrainian, collate.Numeric)
	slices.SortFunc(rooms, func(a, b Room) int {
		return c.CompareString(a.Name, b.Name)
	})
}
