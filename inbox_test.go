package schedz

import (
	"errors"
	"reflect"
	"testing"
)

func TestInbox(t *testing.T) {
	t.Run("Drain Returns Events In Arrival Order", func(t *testing.T) {
		in := NewInbox(8)
		for _, k := range []EventKind{IORequest, ProcessExit, IORequest} {
			if err := in.Post(k); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if in.Len() != 3 {
			t.Errorf("Len = %d, want 3", in.Len())
		}
		got := in.Drain()
		want := []EventKind{IORequest, ProcessExit, IORequest}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Drain = %v, want %v", got, want)
		}
	})

	t.Run("Drain Clears The Inbox", func(t *testing.T) {
		in := NewInbox(8)
		_ = in.Post(ProcessExit)
		in.Drain()
		if in.Len() != 0 {
			t.Errorf("Len after drain = %d, want 0", in.Len())
		}
		if got := in.Drain(); got != nil {
			t.Errorf("second Drain = %v, want nil", got)
		}
	})

	t.Run("Post Fails When Full", func(t *testing.T) {
		in := NewInbox(2)
		_ = in.Post(IORequest)
		_ = in.Post(IORequest)
		if err := in.Post(ProcessExit); !errors.Is(err, ErrInboxFull) {
			t.Errorf("expected ErrInboxFull, got %v", err)
		}
		// The overflowing event is dropped, not queued.
		if got := in.Drain(); len(got) != 2 {
			t.Errorf("Drain length = %d, want 2", len(got))
		}
	})

	t.Run("Ring Is Reused Across Drains", func(t *testing.T) {
		in := NewInbox(2)
		for i := 0; i < 5; i++ {
			if err := in.Post(IORequest); err != nil {
				t.Fatalf("post %d: %v", i, err)
			}
			if err := in.Post(ProcessExit); err != nil {
				t.Fatalf("post %d: %v", i, err)
			}
			got := in.Drain()
			want := []EventKind{IORequest, ProcessExit}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round %d: Drain = %v, want %v", i, got, want)
			}
		}
	})

	t.Run("Zero Capacity Falls Back To Default", func(t *testing.T) {
		in := NewInbox(0)
		for i := 0; i < DefaultInboxCapacity; i++ {
			if err := in.Post(IORequest); err != nil {
				t.Fatalf("post %d: %v", i, err)
			}
		}
		if err := in.Post(IORequest); !errors.Is(err, ErrInboxFull) {
			t.Errorf("expected ErrInboxFull at default capacity, got %v", err)
		}
	})
}
