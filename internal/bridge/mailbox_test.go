package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const testBase = "DEV_aabbcc"

func newTestMailbox(capacity, maxPayload int) *Mailbox {
	return NewMailbox(MailboxConfig{Base: testBase, Capacity: capacity, MaxPayload: maxPayload})
}

func TestNewMailbox_Defaults(t *testing.T) {
	m := NewMailbox(MailboxConfig{Base: testBase})
	if m.Cap() != DefaultMailboxCapacity {
		t.Errorf("Cap() = %d, want %d", m.Cap(), DefaultMailboxCapacity)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if m.Base() != testBase {
		t.Errorf("Base() = %q, want %q", m.Base(), testBase)
	}
}

func TestMailbox_StripsBase(t *testing.T) {
	m := newTestMailbox(10, 128)

	if err := m.Enqueue("DEV_aabbcc/Sensor/Temp", []byte("21.5")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	rec, ok := m.TryReceive()
	if !ok {
		t.Fatal("TryReceive() returned nothing")
	}
	if rec.Subtopic != "Sensor/Temp" {
		t.Errorf("Subtopic = %q, want %q", rec.Subtopic, "Sensor/Temp")
	}
	if string(rec.Payload) != "21.5" {
		t.Errorf("Payload = %q, want %q", rec.Payload, "21.5")
	}
	if rec.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
}

func TestMailbox_DropOldest(t *testing.T) {
	m := newTestMailbox(10, 128)

	// Eleven records into a mailbox of ten keeps records 2..11.
	for i := 1; i <= 11; i++ {
		if err := m.Enqueue(fmt.Sprintf("%s/n/%d", testBase, i), []byte{byte(i)}); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	if m.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", m.Len())
	}

	for want := 2; want <= 11; want++ {
		rec, ok := m.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() empty, want record %d", want)
		}
		if rec.Subtopic != fmt.Sprintf("n/%d", want) {
			t.Errorf("Subtopic = %q, want n/%d", rec.Subtopic, want)
		}
	}

	if _, ok := m.TryReceive(); ok {
		t.Error("TryReceive() returned a record from a drained mailbox")
	}

	st := m.Stats()
	if st.Evicted != 1 || st.Accepted != 11 || st.Delivered != 10 {
		t.Errorf("Stats() = %+v, want 1 evicted, 11 accepted, 10 delivered", st)
	}
}

func TestMailbox_KeepsMostRecent(t *testing.T) {
	for _, n := range []int{1, 3, 10, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			m := newTestMailbox(3, 128)
			for i := 0; i < n; i++ {
				_ = m.Enqueue(fmt.Sprintf("%s/%d", testBase, i), nil) //nolint:errcheck // Valid topic
			}

			first := max(0, n-3)
			for i := first; i < n; i++ {
				rec, ok := m.TryReceive()
				if !ok || rec.Subtopic != fmt.Sprint(i) {
					t.Fatalf("TryReceive() = (%q, %v), want %d", rec.Subtopic, ok, i)
				}
			}
			if m.Len() != 0 {
				t.Errorf("Len() = %d after draining", m.Len())
			}
		})
	}
}

func TestMailbox_MalformedTopic(t *testing.T) {
	m := newTestMailbox(2, 128)
	_ = m.Enqueue(testBase+"/keep", nil)  //nolint:errcheck // Valid topic
	_ = m.Enqueue(testBase+"/keep2", nil) //nolint:errcheck // Valid topic

	for _, topic := range []string{"OTHER/x", testBase, testBase + "/", ""} {
		if err := m.Enqueue(topic, []byte("x")); !errors.Is(err, ErrMalformedTopic) {
			t.Errorf("Enqueue(%q) error = %v, want ErrMalformedTopic", topic, err)
		}
	}

	// Malformed topics leave a full mailbox untouched.
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	rec, _ := m.TryReceive()
	if rec.Subtopic != "keep" {
		t.Errorf("oldest = %q, want keep", rec.Subtopic)
	}
	if st := m.Stats(); st.Malformed != 4 || st.Evicted != 0 {
		t.Errorf("Stats() = %+v, want 4 malformed, 0 evicted", st)
	}
}

func TestMailbox_PayloadTruncationAndCopy(t *testing.T) {
	m := newTestMailbox(10, 8)

	payload := []byte("0123456789abcdef")
	if err := m.Enqueue(testBase+"/p", payload); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	payload[0] = 'X'

	rec, _ := m.TryReceive()
	if !bytes.Equal(rec.Payload, []byte("01234567")) {
		t.Errorf("Payload = %q, want %q", rec.Payload, "01234567")
	}
}

func TestMailbox_TryReceiveEmptyIsIdempotent(t *testing.T) {
	m := newTestMailbox(10, 128)

	for i := 0; i < 3; i++ {
		if _, ok := m.TryReceive(); ok {
			t.Fatal("TryReceive() on empty mailbox returned a record")
		}
	}
	if st := m.Stats(); st.Depth != 0 || st.Delivered != 0 {
		t.Errorf("Stats() = %+v after empty reads", st)
	}
}

func TestMailbox_ReceiveTimeout(t *testing.T) {
	m := newTestMailbox(10, 128)

	start := time.Now()
	if _, ok := m.ReceiveTimeout(20 * time.Millisecond); ok {
		t.Fatal("ReceiveTimeout() returned a record from an empty mailbox")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("ReceiveTimeout() returned after %v, want about 20ms", elapsed)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Enqueue(testBase+"/late", nil) //nolint:errcheck // Valid topic
	}()

	rec, ok := m.ReceiveTimeout(time.Second)
	if !ok || rec.Subtopic != "late" {
		t.Errorf("ReceiveTimeout() = (%q, %v), want late", rec.Subtopic, ok)
	}
}

func TestMailbox_ReceiveCancelled(t *testing.T) {
	m := newTestMailbox(10, 128)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := m.Receive(ctx); ok {
		t.Error("Receive() with cancelled context returned a record")
	}
}

func TestMailbox_ReceiveQueuedAfterDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		receive func(m *Mailbox) (Record, bool)
	}{
		{"zero timeout", func(m *Mailbox) (Record, bool) { return m.ReceiveTimeout(0) }},
		{"negative timeout", func(m *Mailbox) (Record, bool) { return m.ReceiveTimeout(-time.Second) }},
		{"cancelled context", func(m *Mailbox) (Record, bool) { return m.Receive(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMailbox(10, 128)
			// Repeat: a racy select would miss about half the time.
			for i := 0; i < 200; i++ {
				if err := m.Enqueue(testBase+"/Cmd/Status", []byte("x")); err != nil {
					t.Fatalf("Enqueue() error: %v", err)
				}
				rec, ok := tt.receive(m)
				if !ok || rec.Subtopic != "Cmd/Status" {
					t.Fatalf("iteration %d: got (%q, %v), want queued record", i, rec.Subtopic, ok)
				}
			}
			if _, ok := tt.receive(m); ok {
				t.Error("empty mailbox returned a record after the deadline")
			}
			if got := m.Stats().Delivered; got != 200 {
				t.Errorf("Delivered = %d, want 200", got)
			}
		})
	}
}

func TestMailbox_ConcurrentReadersAndWriter(t *testing.T) {
	m := newTestMailbox(4, 128)
	const total = 500

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		received int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := m.Receive(ctx); !ok {
					return
				}
				mu.Lock()
				received++
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			_ = m.Enqueue(fmt.Sprintf("%s/%d", testBase, i), nil) //nolint:errcheck // Valid topic
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked with readers attached")
	}

	// Let readers drain what is left, then stop them.
	deadline := time.Now().Add(2 * time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	st := m.Stats()
	mu.Lock()
	defer mu.Unlock()
	if uint64(received) != st.Delivered {
		t.Errorf("received %d, Stats().Delivered = %d", received, st.Delivered)
	}
	if st.Delivered+st.Evicted != total {
		t.Errorf("delivered %d + evicted %d != %d", st.Delivered, st.Evicted, total)
	}
}
