package strategy

import "testing"

func TestStitchJoinsInOrderDroppingEmpties(t *testing.T) {
	got := stitch([]PartialResult{
		{ChunkID: 0, Text: "hello "},
		{ChunkID: 1, Text: ""},
		{ChunkID: 2, Text: " world"},
	}, false)
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestStitchDropsOverlapLCP(t *testing.T) {
	got := stitch([]PartialResult{
		{ChunkID: 0, Text: "the quick brown"},
		{ChunkID: 1, Text: "brown fox jumps"},
	}, true)
	if got != "the quick brown fox jumps" {
		t.Fatalf("got %q", got)
	}
}

func TestDropLCPNoOverlap(t *testing.T) {
	if got := dropLCP("abc", "xyz"); got != "xyz" {
		t.Fatalf("got %q", got)
	}
}
