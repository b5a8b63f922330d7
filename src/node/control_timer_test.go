package node

import (
	"testing"
	"time"
)

func TestControlTimer(t *testing.T) {
	fire := make(chan time.Time)
	timer := NewControlTimer(func(time.Duration) <-chan time.Time {
		return fire
	})
	go timer.Run(time.Second)

	fire <- time.Now()
	select {
	case <-timer.Ticks():
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}

	// disarmed until reset
	select {
	case fire <- time.Now():
		t.Fatal("timer fired without reset")
	case <-time.After(20 * time.Millisecond):
	}

	if !timer.Reset(2 * time.Second) {
		t.Fatal("Reset failed on a running timer")
	}
	fire <- time.Now()
	<-timer.Ticks()

	timer.Reset(3 * time.Second)
	timer.Stop()
	select {
	case fire <- time.Now():
		t.Fatal("stopped timer fired")
	case <-time.After(20 * time.Millisecond):
	}

	timer.Shutdown()
	if timer.Reset(time.Second) {
		t.Fatal("Reset succeeded after Shutdown")
	}
}
