package srpc

import (
	"context"
	"testing"
	"time"
)

// fakeWriter records sent packets and can simulate a closed writer.
type fakeWriter struct {
	sent   []*Packet
	closed bool
}

func (w *fakeWriter) MsgSend(pkt *Packet) error {
	w.sent = append(w.sent, pkt)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestCommonRpc_IdempotentCompletion(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	if err := c.WriteCallData(nil, true, nil); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if err := c.WriteCallData(nil, true, nil); err != nil {
		t.Fatalf("second complete (idempotent) should also succeed: %v", err)
	}
	if err := c.WriteCallData([]byte("x"), false, nil); err != ErrCompleted {
		t.Fatalf("write after completion: expected ErrCompleted, got %v", err)
	}
}

func TestCommonRpc_WriteCallCancelOnlyOnce(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	if err := c.WriteCallCancel(); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := c.WriteCallCancel(); err != ErrCompleted {
		t.Fatalf("second cancel: expected ErrCompleted, got %v", err)
	}
}

func TestCommonRpc_HandleCallDataQueuesInOrder(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	if err := c.HandleCallData(&CallData{Data: []byte("a")}); err != nil {
		t.Fatalf("HandleCallData a: %v", err)
	}
	if err := c.HandleCallData(&CallData{Data: []byte("b")}); err != nil {
		t.Fatalf("HandleCallData b: %v", err)
	}

	got, err := c.ReadOne()
	if err != nil || string(got) != "a" {
		t.Fatalf("expected a, nil; got %q, %v", got, err)
	}
	got, err = c.ReadOne()
	if err != nil || string(got) != "b" {
		t.Fatalf("expected b, nil; got %q, %v", got, err)
	}
}

func TestCommonRpc_HandleCallDataAfterClosedDropsOrFails(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	if err := c.HandleCallData(&CallData{Complete: true}); err != nil {
		t.Fatalf("close: %v", err)
	}
	// A further complete-only packet after closed is dropped silently.
	if err := c.HandleCallData(&CallData{Complete: true}); err != nil {
		t.Fatalf("duplicate complete after closed should be a no-op, got %v", err)
	}
	// A non-complete packet after closed fails.
	if err := c.HandleCallData(&CallData{Data: []byte("late")}); err != ErrCompleted {
		t.Fatalf("expected ErrCompleted for data after closed, got %v", err)
	}
}

func TestCommonRpc_RemoteErrorSurfacesOnReadAndWait(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	if err := c.HandleCallData(&CallData{Error: "boom"}); err != nil {
		t.Fatalf("HandleCallData: %v", err)
	}

	if _, err := c.ReadOne(); err == nil || err.Error() != "boom" {
		t.Fatalf("expected remote error \"boom\", got %v", err)
	}
	if err := c.Wait(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("Wait: expected remote error \"boom\", got %v", err)
	}
}

func TestCommonRpc_StreamClosedOnCleanComplete(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	if err := c.HandleCallData(&CallData{Complete: true}); err != nil {
		t.Fatalf("HandleCallData: %v", err)
	}
	if _, err := c.ReadOne(); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on clean completion: expected nil, got %v", err)
	}
}

func TestCommonRpc_CancellationClosesWriterAndFailsRead(t *testing.T) {
	w := &fakeWriter{}
	parent, cancel := context.WithCancel(context.Background())
	c := newCommonRpc(parent, w)

	cancel()

	if _, err := c.ReadOne(); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !w.closed {
		t.Fatal("expected writer to be closed after context cancellation")
	}
}

func TestCommonRpc_CancellationTree(t *testing.T) {
	parent, parentCancel := context.WithCancel(context.Background())
	child := newCommonRpc(parent, &fakeWriter{})
	sibling := newCommonRpc(parent, &fakeWriter{})

	select {
	case <-child.Context().Done():
		t.Fatal("child should not be cancelled before parent is")
	default:
	}

	parentCancel()

	select {
	case <-child.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("cancelling parent should cancel child")
	}
	select {
	case <-sibling.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("cancelling parent should cancel sibling")
	}
}

func TestCommonRpc_CancellingChildDoesNotCancelParent(t *testing.T) {
	parent := context.Background()
	child := newCommonRpc(parent, &fakeWriter{})
	child.ctxCancel()

	select {
	case <-child.Context().Done():
	default:
		t.Fatal("expected child context to be cancelled")
	}
	select {
	case <-parent.Done():
		t.Fatal("parent context must not observe child cancellation")
	default:
	}
}

func TestCommonRpc_MultipleReadersAllWake(t *testing.T) {
	w := &fakeWriter{}
	c := newCommonRpc(context.Background(), w)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.ReadOne()
			results <- err
		}()
	}

	// Give both goroutines a chance to start waiting.
	time.Sleep(20 * time.Millisecond)
	if err := c.HandleCallData(&CallData{Complete: true}); err != nil {
		t.Fatalf("HandleCallData: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != ErrStreamClosed {
				t.Fatalf("expected ErrStreamClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a reader to wake")
		}
	}
}
