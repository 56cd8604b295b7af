package ring

import (
	"testing"
)

func TestNewDefaultCapacity(t *testing.T) {
	s := New(0, 0)
	if s.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", s.Capacity(), DefaultCapacity)
	}
}

func TestEmptyStore(t *testing.T) {
	s := New(-1, 4)
	if s.Top() != 0 || s.Bottom() != 0 {
		t.Errorf("top/bottom = %d/%d, want 0/0", s.Top(), s.Bottom())
	}
	res := s.Get(0)
	if res.Status != Pending {
		t.Errorf("Get(0) on empty store = %v, want pending", res.Status)
	}
	vals, bottom := s.Snapshot()
	if vals != nil || bottom != 0 {
		t.Errorf("Snapshot() = %v, %d, want nil, 0", vals, bottom)
	}
}

func TestGetReturnsPushedValue(t *testing.T) {
	s := New(-1, 8)
	for i := 0; i < 20; i++ {
		s.Push(i)
	}
	if s.Top() != 20 {
		t.Fatalf("Top() = %d, want 20", s.Top())
	}
	if s.Bottom() != 12 {
		t.Fatalf("Bottom() = %d, want 12", s.Bottom())
	}
	for idx := s.Bottom(); idx < s.Top(); idx++ {
		res := s.Get(idx)
		if res.Status != Ready {
			t.Fatalf("Get(%d) = %v, want ready", idx, res.Status)
		}
		if res.Value != int(idx) {
			t.Errorf("Get(%d) = %d, want %d", idx, res.Value, idx)
		}
	}
}

func TestGetExpiredAfterCapacityPushes(t *testing.T) {
	for _, capacity := range []int{1, 3, 8} {
		s := New(-1, capacity)
		for n := 1; n <= 3*capacity; n++ {
			s.Push(n - 1)
			top := uint64(n)
			for i := uint64(0); i < top; i++ {
				res := s.Get(i)
				wantExpired := top-i > uint64(capacity)
				if wantExpired && res.Status != Expired {
					t.Errorf("cap=%d top=%d: Get(%d) = %v, want expired", capacity, top, i, res.Status)
				}
				if !wantExpired && res.Status != Ready {
					t.Errorf("cap=%d top=%d: Get(%d) = %v, want ready", capacity, top, i, res.Status)
				}
			}
		}
	}
}

func TestGetPendingAtAndBeyondTop(t *testing.T) {
	s := New(-1, 4)
	s.Push(1)
	for _, idx := range []uint64{1, 2, 100} {
		if res := s.Get(idx); res.Status != Pending {
			t.Errorf("Get(%d) = %v, want pending", idx, res.Status)
		}
	}
}

func TestPlaceholderNeverObservable(t *testing.T) {
	s := New(-1, 4)
	s.Push(7)
	vals, _ := s.Snapshot()
	for _, v := range vals {
		if v == -1 {
			t.Fatalf("snapshot exposed placeholder: %v", vals)
		}
	}
}

func TestSnapshotAfterWrap(t *testing.T) {
	s := New(-1, 3)
	for i := 0; i < 5; i++ {
		s.Push(i)
	}
	vals, bottom := s.Snapshot()
	if bottom != 2 {
		t.Errorf("bottom = %d, want 2", bottom)
	}
	want := []int{2, 3, 4}
	if len(vals) != len(want) {
		t.Fatalf("Snapshot() = %v, want %v", vals, want)
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %d, want %d", i, vals[i], want[i])
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{Ready, "ready"},
		{Pending, "pending"},
		{Expired, "expired"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func BenchmarkPush(b *testing.B) {
	s := New(0, 10_000)
	for i := 0; i < b.N; i++ {
		s.Push(i)
	}
}

func BenchmarkGetReady(b *testing.B) {
	s := New(0, 1024)
	for i := 0; i < 1024; i++ {
		s.Push(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Get(uint64(i % 1024))
	}
}
