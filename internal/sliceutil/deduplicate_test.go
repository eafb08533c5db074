package sliceutil

import (
	"reflect"
	"strconv"
	"testing"
)

type group struct {
	Key     string
	Faculty string
}

func byKey(g group) string { return g.Key }

func TestDeduplicate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		items []group
		want  []group
	}{
		{
			name:  "no duplicates",
			items: []group{{"G1", "F1"}, {"G2", "F1"}, {"G3", "F2"}},
			want:  []group{{"G1", "F1"}, {"G2", "F1"}, {"G3", "F2"}},
		},
		{
			name:  "same group from two faculties keeps first",
			items: []group{{"G1", "F1"}, {"G2", "F1"}, {"G1", "F2"}, {"G3", "F2"}},
			want:  []group{{"G1", "F1"}, {"G2", "F1"}, {"G3", "F2"}},
		},
		{
			name:  "all duplicates",
			items: []group{{"G1", "A"}, {"G1", "B"}, {"G1", "C"}},
			want:  []group{{"G1", "A"}},
		},
		{
			name:  "empty",
			items: []group{},
			want:  []group{},
		},
		{
			name:  "order follows first occurrence",
			items: []group{{"G3", ""}, {"G1", ""}, {"G2", ""}, {"G3", "x"}, {"G1", "y"}},
			want:  []group{{"G3", ""}, {"G1", ""}, {"G2", ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Deduplicate(tt.items, byKey)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Deduplicate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		n    int
		size int
		want []int // chunk lengths
	}{
		{"exact multiple", 10, 5, []int{5, 5}},
		{"remainder", 11, 5, []int{5, 5, 1}},
		{"smaller than size", 3, 8, []int{3}},
		{"empty", 0, 8, []int{}},
		{"size zero treated as one", 3, 0, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			items := make([]int, tt.n)
			for i := range items {
				items[i] = i
			}
			chunks := Chunk(items, tt.size)

			got := make([]int, 0, len(chunks))
			next := 0
			for _, c := range chunks {
				got = append(got, len(c))
				for _, v := range c {
					if v != next {
						t.Fatalf("chunk order broken: got %d, want %d", v, next)
					}
					next++
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("chunk sizes = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkDeduplicate(b *testing.B) {
	items := make([]group, 1000)
	for i := range items {
		items[i] = group{Key: strconv.Itoa(i % 100)}
	}

	b.ResetTimer()
	for b.Loop() {
		_ = Deduplicate(items, byKey)
	}
}
