package stringutil

import "testing"

func TestLeadingInt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"1 пара", 1, true},
		{"7 пара", 7, true},
		{"12 пара", 12, true},
		{"3пара", 3, true},
		{"  2 пара", 2, true},
		{"пара 1", 0, false},
		{"", 0, false},
		{"-1 пара", 0, false},
		{"99999999999999999999999 пара", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := LeadingInt(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("LeadingInt(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCollapseSpace(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"2-204", "2-204"},
		{"  2-204 ", "2-204"},
		{"Гол.  корп\t101", "Гол. корп 101"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CollapseSpace(tt.in); got != tt.want {
			t.Errorf("CollapseSpace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
