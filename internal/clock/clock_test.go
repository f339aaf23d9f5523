package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWall_AfterFuncFires(t *testing.T) {
	fired := make(chan struct{})
	Wall{}.AfterFunc(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestWall_StopPreventsCallback(t *testing.T) {
	fired := make(chan struct{}, 1)
	tm := Wall{}.AfterFunc(time.Hour, func() { fired <- struct{}{} })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop reports already stopped")
	assert.Empty(t, fired)
}

func TestWall_Now(t *testing.T) {
	before := time.Now()
	got := Wall{}.Now()
	assert.False(t, got.Before(before))
}
