package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ids(orders []Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestSort_DoneAfterPending(t *testing.T) {
	a := ready(mk("A", 0, items(true, true)), time.Minute)
	b := mk("B", 2*time.Minute, items(false))

	got := Sort([]Order{a, b}, base.Add(10*time.Minute))

	assert.Equal(t, StatusDone, Derive(a))
	assert.Equal(t, StatusNew, Derive(b))
	assert.Equal(t, []string{"B", "A"}, ids(got))
}

func TestSort_PendingLongestWaitFirst(t *testing.T) {
	orders := []Order{
		mk("young", 5*time.Minute, items(false)),
		mk("old", 0, items(true, false)),
		mk("middle", 2*time.Minute, items(false)),
	}

	got := Sort(orders, base.Add(10*time.Minute))
	assert.Equal(t, []string{"old", "middle", "young"}, ids(got))
}

func TestSort_DoneFastestTurnaroundFirst(t *testing.T) {
	orders := []Order{
		ready(mk("slow", 0, items(true)), 9*time.Minute),
		ready(mk("fast", time.Minute, items(true)), time.Minute),
		ready(mk("mid", 2*time.Minute, items(true)), 4*time.Minute),
	}

	got := Sort(orders, base.Add(time.Hour))
	assert.Equal(t, []string{"fast", "mid", "slow"}, ids(got))
}

func TestSort_DoneWithoutReadyAtMeasuredToNow(t *testing.T) {
	stamped := ready(mk("stamped", 0, items(true)), 2*time.Minute)
	lagging := mk("lagging", 0, items(true))

	got := Sort([]Order{lagging, stamped}, base.Add(30*time.Minute))
	assert.Equal(t, []string{"stamped", "lagging"}, ids(got))
}

func TestSort_StableForTies(t *testing.T) {
	orders := []Order{
		mk("first", 0, items(false)),
		mk("second", 0, items(false)),
		mk("third", 0, items(false)),
	}

	got := Sort(orders, base.Add(time.Minute))
	assert.Equal(t, []string{"first", "second", "third"}, ids(got))
}

func TestSort_DoesNotModifyInput(t *testing.T) {
	orders := []Order{
		mk("young", time.Minute, items(false)),
		mk("old", 0, items(false)),
	}

	_ = Sort(orders, base.Add(time.Hour))
	assert.Equal(t, []string{"young", "old"}, ids(orders))
}

func TestSort_EveryDoneAfterEveryPending(t *testing.T) {
	var orders []Order
	for i := 0; i < 12; i++ {
		var its []Item
		switch i % 3 {
		case 0:
			its = items(false, false)
		case 1:
			its = items(true, false)
		default:
			its = items(true, true)
		}
		o := mk(string(rune('a'+i)), time.Duration(i*7%11)*time.Minute, its)
		if i%3 == 2 && i%2 == 0 {
			o = ready(o, time.Duration(i)*time.Minute)
		}
		orders = append(orders, o)
	}

	got := Sort(orders, base.Add(2*time.Hour))

	seenDone := false
	for _, o := range got {
		if Derive(o) == StatusDone {
			seenDone = true
			continue
		}
		assert.False(t, seenDone, "pending order %s listed after a done order", o.ID)
	}
}

func TestSort_DependsOnNow(t *testing.T) {
	// Ranking is recomputed from now on every call; relative wait order of
	// pending orders is the same at any instant after both were created.
	orders := []Order{
		mk("b", time.Minute, items(false)),
		mk("a", 0, items(false)),
	}
	assert.Equal(t, []string{"a", "b"}, ids(Sort(orders, base.Add(2*time.Minute))))
	assert.Equal(t, []string{"a", "b"}, ids(Sort(orders, base.Add(3*time.Hour))))
}
