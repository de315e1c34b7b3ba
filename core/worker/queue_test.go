package worker

import "testing"

func TestFifo_OrderAcrossSwaps(t *testing.T) {
	var q fifo
	var got []int
	next := 0
	push := func(n int) {
		for range n {
			v := next
			q.Push(func() { got = append(got, v) })
			next++
		}
	}

	push(3)
	q.Pop()()
	push(4) // lands in tail while head still has items
	for q.Len() > 0 {
		q.Pop()()
	}
	push(2)
	for q.Len() > 0 {
		q.Pop()()
	}

	if len(got) != next {
		t.Fatalf("expected %d tasks, got %d", next, len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d holds task %d", i, v)
		}
	}
}

func TestFifo_Reset(t *testing.T) {
	var q fifo
	for range 5 {
		q.Push(func() {})
	}
	q.Pop()
	if n := q.Reset(); n != 4 {
		t.Fatalf("expected 4 dropped tasks, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}
