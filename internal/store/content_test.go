package store

import (
	"reflect"
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "lowercases and trims",
			in:   []string{" Growth ", "FEEDBACK"},
			want: []string{"growth", "feedback"},
		},
		{
			name: "drops blanks",
			in:   []string{"", "   ", "retro"},
			want: []string{"retro"},
		},
		{
			name: "empty input",
			in:   nil,
			want: []string{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeTags(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("NormalizeTags(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"plain":      "plain",
		"100%":       `100\%`,
		"under_sc":   `under\_sc`,
		`back\slash`: `back\\slash`,
		`%_\`:        `\%\_\\`,
	}
	for in, want := range cases {
		if got := escapeLike(in); got != want {
			t.Fatalf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
