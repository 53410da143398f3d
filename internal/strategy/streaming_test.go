package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rbright/scout/internal/types"
)

func TestStreamingDeliversPartialsAndAssemblesFinal(t *testing.T) {
	tr := &fakeTranscriber{fn: func(c types.AudioChunk) (types.Transcript, error) {
		return types.Transcript{Text: "chunk"}, nil
	}}

	cfg := Config{
		ChunkDuration:       50 * time.Millisecond,
		MinChunk:            20 * time.Millisecond,
		ChunkTimeout:        2 * time.Second,
		StreamingSampleRate: 1000,
	}

	var mu sync.Mutex
	var partials int
	s := NewStreaming(tr, cfg, func(PartialResult) {
		mu.Lock()
		partials++
		mu.Unlock()
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Feed 120ms worth of samples at 1kHz in small bursts.
	for i := 0; i < 6; i++ {
		s.FeedSamples(make([]float32, 20))
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	res, err := s.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if res.Text == "" {
		t.Fatalf("expected non-empty stitched text")
	}
	mu.Lock()
	got := partials
	mu.Unlock()
	if got == 0 {
		t.Fatalf("expected at least one partial callback")
	}
}
