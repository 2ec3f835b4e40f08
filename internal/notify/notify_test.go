// README: Notification fan-out tests; Redis delivery runs only when CONVOY_TEST_REDIS is set.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversAfterCallerContextEnds(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Event
	)
	n := NotifierFunc(func(ctx context.Context, e Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})
	d := NewDispatcher(n, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, Event{Kind: TourTransitioned, TourID: 1}, Event{Kind: BookingCreated, TourID: 1})
	cancel()
	d.Wait()

	require.Len(t, got, 2)
	for _, e := range got {
		assert.False(t, e.At.IsZero())
	}
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(NotifierFunc(func(context.Context, Event) error {
		calls.Add(1)
		return errors.New("broker down")
	}), 50*time.Millisecond, nil)

	d.Dispatch(context.Background(), Event{Kind: TourCreated, TourID: 3})
	d.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(context.Background(), Event{Kind: TourCreated})
	d.Wait()
}

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	var delivered int
	m := Multi{
		NotifierFunc(func(context.Context, Event) error { return errA }),
		nil,
		NotifierFunc(func(context.Context, Event) error { delivered++; return nil }),
		NotifierFunc(func(context.Context, Event) error { return errB }),
	}
	err := m.Notify(context.Background(), Event{Kind: TourCreated})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, delivered)
}

type stubSender struct {
	msgs []*messaging.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	s.msgs = append(s.msgs, m)
	return "projects/convoy/messages/1", s.err
}

func TestFCMNotifierTargetsTourTopic(t *testing.T) {
	s := &stubSender{}
	n := NewFCMNotifier(s)

	err := n.Notify(context.Background(), Event{
		Kind:       TourTransitioned,
		TourID:     12,
		BookingIDs: []int64{4, 5},
		From:       "Programmée",
		To:         "Ramassage en cours",
	})
	require.NoError(t, err)
	require.Len(t, s.msgs, 1)
	msg := s.msgs[0]
	assert.Equal(t, "tour-12", msg.Topic)
	assert.Equal(t, "4,5", msg.Data["booking_ids"])
	assert.Equal(t, "Ramassage en cours", msg.Data["to"])

	s.err = errors.New("unavailable")
	assert.Error(t, n.Notify(context.Background(), Event{Kind: TourCreated, TourID: 1}))
}

func TestRedisPublisher(t *testing.T) {
	addr := os.Getenv("CONVOY_TEST_REDIS")
	if addr == "" {
		t.Skip("CONVOY_TEST_REDIS not set; skipping Redis publisher test")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	channel := "convoy:test:" + time.Now().Format("150405.000")
	sub := client.Subscribe(ctx, tourChannel(channel, 9))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := NewRedisPublisher(client, channel)
	require.NoError(t, p.Notify(ctx, Event{Kind: BookingCreated, TourID: 9, BookingIDs: []int64{1}}))

	select {
	case msg := <-sub.Channel():
		var e Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
		assert.Equal(t, BookingCreated, e.Kind)
		assert.Equal(t, []int64{1}, e.BookingIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on tour channel")
	}
}
