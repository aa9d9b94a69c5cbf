package main

import (
	"reflect"
	"testing"
)

func TestSplitList(t *testing.T) {
	tests := map[string][]string{
		"":                nil,
		"org-a":           {"org-a"},
		" org-a , org-b,": {"org-a", "org-b"},
		",,":              nil,
	}
	for in, want := range tests {
		if got := splitList(in); !reflect.DeepEqual(got, want) {
			t.Errorf("splitList(%q): expected %v, got %v", in, want, got)
		}
	}
}
