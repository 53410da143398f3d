package workerpool

import "testing"

func TestBackoffDoublesUntilCap(t *testing.T) {
	b := newBackoff(100, 800, 10)

	wait, retire := b.next()
	if retire || wait != 100 {
		t.Fatalf("expected first wait=100, got wait=%d retire=%v", wait, retire)
	}
	wait, retire = b.next()
	if retire || wait != 200 {
		t.Fatalf("expected second wait=200, got wait=%d retire=%v", wait, retire)
	}
	wait, retire = b.next()
	if retire || wait != 400 {
		t.Fatalf("expected third wait=400, got wait=%d retire=%v", wait, retire)
	}
	wait, retire = b.next()
	if retire || wait != 800 {
		t.Fatalf("expected fourth wait=800 (capped), got wait=%d retire=%v", wait, retire)
	}
}

func TestBackoffResetOnSuccess(t *testing.T) {
	b := newBackoff(100, 800, 10)
	b.next()
	b.next()
	b.resetOnSuccess()
	wait, retire := b.next()
	if retire || wait != 100 {
		t.Fatalf("expected reset wait=100, got wait=%d retire=%v", wait, retire)
	}
}

func TestBackoffRetiresAfterMaxRestarts(t *testing.T) {
	b := newBackoff(10, 10, 2)
	for i := 0; i < 2; i++ {
		_, retire := b.next()
		if retire {
			t.Fatalf("unexpected early retirement at attempt %d", i)
		}
	}
	_, retire := b.next()
	if !retire {
		t.Fatalf("expected retirement after exceeding maxRestarts")
	}
}
