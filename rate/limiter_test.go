package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	burst := 1

	interval := 10 * time.Millisecond
	lim := Every(interval)
	r := NewLimiter(burst, time.Hour, lim)
	defer r.Stop()

	tooshort := 1 * time.Millisecond

	client := "user:student-1"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterWithBurst(t *testing.T) {
	client := "user:student-1"
	burst := 10

	interval := 100 * time.Millisecond
	lim := Every(interval)

	tooshort := 10 * time.Millisecond

	shortest := 1 * time.Millisecond

	expected := []bool{true, true, true, true, true, true, true, true, true, true}
	waits := []time.Duration{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	expected = append(expected, false, true, true, false, false, false)
	waits = append(waits, interval, interval, tooshort, tooshort, shortest, shortest)

	rr := NewLimiter(burst, time.Hour, lim)
	defer rr.Stop()
	for i, exp := range expected {
		if got := rr.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterClientsAreIndependent(t *testing.T) {
	r := NewLimiter(1, time.Hour, Every(time.Hour))
	defer r.Stop()

	if !r.Check("user:a") {
		t.Fatal("first request of a should pass")
	}
	if r.Check("user:a") {
		t.Fatal("second request of a should be throttled")
	}
	if !r.Check("user:b") {
		t.Fatal("b must not share a's bucket")
	}
}

func TestLimiterEvict(t *testing.T) {
	r := NewLimiter(1, time.Minute, Every(time.Second))
	defer r.Stop()

	r.Check("user:a")
	r.Check("user:b")

	r.evict(time.Now())
	if got := r.size(); got != 2 {
		t.Fatalf("fresh clients evicted: %d left", got)
	}

	r.evict(time.Now().Add(2 * time.Minute))
	if got := r.size(); got != 0 {
		t.Fatalf("stale clients kept: %d left", got)
	}
}
