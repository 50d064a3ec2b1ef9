package handles

import (
	"errors"
	"sync"
	"testing"
)

func TestTable_Basic(t *testing.T) {
	tb := New()

	h, err := tb.Put("test value")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := tb.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if !tb.Release(h) {
		t.Fatal("Release should free the only reference")
	}
	if _, ok := tb.Get(h); ok {
		t.Fatal("Expected Get to fail after Release")
	}
}

func TestTable_Interning(t *testing.T) {
	tb := New()

	type point struct{ X, Y int }
	p := &point{1, 2}
	s := []int{1, 2, 3}
	m := map[string]int{"a": 1}

	tests := []struct {
		name string
		v    any
	}{
		{"string", "hello"},
		{"struct", point{1, 2}},
		{"pointer", p},
		{"slice", s},
		{"map", m},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1, err := tb.Put(tt.v)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			h2, err := tb.Put(tt.v)
			if err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if h1 != h2 {
				t.Fatalf("same value got handles %d and %d", h1, h2)
			}
			// Two references: the first Release keeps the handle alive.
			if tb.Release(h1) {
				t.Fatal("first Release freed a handle with two references")
			}
			if _, ok := tb.Get(h1); !ok {
				t.Fatal("handle gone after first Release")
			}
			if !tb.Release(h1) {
				t.Fatal("second Release did not free the handle")
			}
		})
	}
}

func TestTable_SliceIdentity(t *testing.T) {
	tb := New()
	a := []int{1, 2, 3}
	b := []int{1, 2, 3}

	ha, _ := tb.Put(a)
	hb, _ := tb.Put(b)
	if ha == hb {
		t.Error("distinct slices with equal contents share a handle")
	}
	hs, _ := tb.Put(a[:2])
	if hs == ha {
		t.Error("reslice shares the handle of the full slice")
	}
}

func TestTable_NilIsNullHandle(t *testing.T) {
	tb := New()
	h, err := tb.Put(nil)
	if err != nil || h != 0 {
		t.Fatalf("Put(nil) = %d, %v", h, err)
	}
	if _, ok := tb.Get(0); ok {
		t.Error("Get(0) should fail")
	}
	if tb.Release(0) {
		t.Error("Release(0) should be a no-op")
	}
}

func TestTable_FreeListReuse(t *testing.T) {
	tb := New()
	h1, _ := tb.Put("a")
	tb.Release(h1)

	h2, _ := tb.Put("b")
	if h2 != h1 {
		t.Errorf("freed handle %d not reused, got %d", h1, h2)
	}
	if v, _ := tb.Get(h2); v != "b" {
		t.Errorf("reused handle holds %v", v)
	}
	if tb.Len() != 1 {
		t.Errorf("Len = %d, want 1", tb.Len())
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	tb := New()
	if _, ok := tb.Get(99); ok {
		t.Error("Get of unknown handle succeeded")
	}
	if tb.Release(99) {
		t.Error("Release of unknown handle succeeded")
	}
}

func TestTable_Close(t *testing.T) {
	tb := New()
	h, _ := tb.Put("x")
	if err := tb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := tb.Get(h); ok {
		t.Error("Get succeeded after Close")
	}
	if _, err := tb.Put("y"); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close: %v", err)
	}
	if err := tb.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestTable_Concurrent(t *testing.T) {
	tb := New()
	var wg sync.WaitGroup
	handles := make([]Handle, 32)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := tb.Put("shared")
			if err != nil {
				t.Errorf("Put failed: %v", err)
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		if h != handles[0] {
			t.Fatalf("concurrent Puts of one value produced different handles")
		}
	}
	if tb.Len() != 1 {
		t.Errorf("Len = %d, want 1", tb.Len())
	}
}
