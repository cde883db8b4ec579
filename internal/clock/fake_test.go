package clock

import (
	"reflect"
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fired []string
	f.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "c") })

	f.Advance(5 * time.Second)

	if want := []string{"a", "b"}; !reflect.DeepEqual(fired, want) {
		t.Errorf("fired = %v, want %v", fired, want)
	}
	if got := f.Now(); !got.Equal(time.Unix(5, 0)) {
		t.Errorf("Now() = %v, want 5s", got)
	}
	if got := f.Pending(); !reflect.DeepEqual(got, []time.Duration{10 * time.Second}) {
		t.Errorf("Pending() = %v", got)
	}
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ran := false
	tm := f.AfterFunc(time.Second, func() { ran = true })

	if !tm.Stop() {
		t.Fatal("Stop() on pending timer = false, want true")
	}
	if tm.Stop() {
		t.Error("second Stop() = true, want false")
	}
	f.Advance(time.Minute)
	if ran {
		t.Error("stopped timer fired")
	}
}

func TestFakeChainedTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			f.AfterFunc(time.Second, schedule)
		}
	}
	f.AfterFunc(time.Second, schedule)

	f.Advance(10 * time.Second)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
