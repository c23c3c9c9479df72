package ondemand

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := newPool(4)
	p.start()

	var count uint32
	for i := 0; i < 1000; i++ {
		if err := p.Submit(func() { atomic.AddUint32(&count, 1) }); err != nil {
			t.Fatalf("Submit: %s", err)
		}
	}
	p.stop()

	if count != 1000 {
		t.Errorf("executed %d tasks, want 1000", count)
	}
}

func TestPoolOrder(t *testing.T) {
	p := newPool(1)
	p.start()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		p.Submit(func() { got = append(got, i) })
	}
	p.stop()

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	p := newPool(1)
	p.start()
	p.stop()

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("got %v, want ErrPoolStopped", err)
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	p := newPool(1)
	p.start()

	var ran bool
	p.Submit(func() { panic("boom") })
	p.Submit(func() { ran = true })
	p.stop()

	if !ran {
		t.Error("worker died after task panic")
	}
}

func TestPoolSubmitDoesNotBlock(t *testing.T) {
	p := newPool(1)
	p.start()

	started := make(chan struct{})
	release := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-release
	})
	<-started

	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		// Would deadlock if Submit waited for a free worker
		if err := p.Submit(wg.Done); err != nil {
			t.Fatalf("Submit: %s", err)
		}
	}
	if pending := p.Pending(); pending != 100 {
		t.Errorf("pending %d, want 100", pending)
	}

	close(release)
	wg.Wait()
	p.stop()
}
