package ringbuf

import "testing"

func TestEnqueueDequeueOrder(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("Enqueue(%d) failed", i)
		}
	}
	if r.Enqueue(99) {
		t.Fatal("Enqueue on full ring should fail")
	}
	for i := 0; i < 4; i++ {
		v, ok := r.Dequeue()
		if !ok || v != i {
			t.Fatalf("Dequeue() = %d,%v want %d,true", v, ok, i)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Fatal("Dequeue on empty ring should fail")
	}
}

func TestLenAndReset(t *testing.T) {
	r := New[string](2)
	r.Enqueue("a")
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", r.Len())
	}
}
