package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	id       string
	mutex    sync.Mutex
	received []Change
}

func newFakeSink(id string) *fakeSink { return &fakeSink{id: id} }

func (f *fakeSink) ID() string { return f.id }

func (f *fakeSink) Enqueue(c Change) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.received = append(f.received, c)
}

func (f *fakeSink) all() []Change {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]Change(nil), f.received...)
}

func TestSubscriberReceivesChange(t *testing.T) {
	d := New(10 * time.Millisecond)
	sub := newFakeSink("sub")
	d.Register(sub)
	d.Subscribe(sub, 1, 10, true)

	d.Publish(1, 10, 42, nil)

	require.Eventually(t, func() bool { return len(sub.all()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 42, sub.all()[0].Value)
}

func TestOriginatorExcludedFromOwnFanOut(t *testing.T) {
	d := New(10 * time.Millisecond)
	originator := newFakeSink("origin")
	other := newFakeSink("other")
	d.Register(originator)
	d.Register(other)
	d.Subscribe(originator, 1, 10, true)
	d.Subscribe(other, 1, 10, true)

	d.Publish(1, 10, "on", originator)

	require.Eventually(t, func() bool { return len(other.all()) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, originator.all())
}

func TestCoalescesRapidUpdatesToLatestValue(t *testing.T) {
	d := New(50 * time.Millisecond)
	sub := newFakeSink("sub")
	d.Register(sub)
	d.Subscribe(sub, 2, 5, true)

	for _, v := range []int{1, 2, 3, 4, 5} {
		d.Publish(2, 5, v, nil)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(sub.all()) >= 1 }, time.Second, time.Millisecond)
	received := sub.all()
	assert.Equal(t, 5, received[len(received)-1].Value)
	assert.LessOrEqual(t, len(received), 5)
}

func TestUnsubscribedSessionReceivesNothing(t *testing.T) {
	d := New(10 * time.Millisecond)
	sub := newFakeSink("sub")
	d.Register(sub)

	d.Publish(1, 1, true, nil)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, sub.all())
}

func TestUnregisterStopsDelivery(t *testing.T) {
	d := New(10 * time.Millisecond)
	sub := newFakeSink("sub")
	d.Register(sub)
	d.Subscribe(sub, 1, 1, true)
	d.Unregister(sub)

	d.Publish(1, 1, true, nil)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, sub.all())
}
