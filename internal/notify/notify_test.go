package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"haven/internal/types"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (r *recordingNotifier) Notify(ctx context.Context, userIDs []types.ID, title, body string, data map[string]string) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Receipt{}, r.err
	}
	r.messages = append(r.messages, Message{UserIDs: userIDs, Title: title, Body: body, Data: data})
	return Receipt{Sent: len(userIDs)}, nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingNotifier{}
	d := NewDispatcher(sink, zap.NewNop(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(Message{UserIDs: []types.ID{"a", "b"}, Title: "hi", Body: "there"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sink.count() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 delivered message, got %d", sink.count())
	}

	sink.mu.Lock()
	msg := sink.messages[0]
	sink.mu.Unlock()
	if msg.Title != "hi" || len(msg.UserIDs) != 2 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestDispatcherNeverBlocksCaller(t *testing.T) {
	// No worker running: the queue fills and extra messages are dropped,
	// but Enqueue must return immediately every time.
	d := NewDispatcher(&recordingNotifier{}, zap.NewNop(), 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Enqueue(Message{Title: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}

func TestDispatcherSwallowsDeliveryErrors(t *testing.T) {
	sink := &recordingNotifier{err: errors.New("fcm down")}
	d := NewDispatcher(sink, zap.NewNop(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(Message{Title: "a"})

	// Worker keeps running after a failure.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	d.Enqueue(Message{Title: "b"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sink.count() >= 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected worker to survive the failure, delivered=%d", sink.count())
}
