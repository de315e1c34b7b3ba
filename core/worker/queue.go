package worker

// fifo is an unbounded first-in-first-out queue of tasks.
//
// Producers append to tail. The consumer drains head; once head is used up
// the two slices swap, so backing arrays are reused instead of regrown.
// fifo is not safe for concurrent use; the worker mutex guards it.
type fifo struct {
	head []Task
	pos  int
	tail []Task
}

func (q *fifo) Len() int {
	return len(q.head) - q.pos + len(q.tail)
}

func (q *fifo) Push(t Task) {
	q.tail = append(q.tail, t)
}

// Pop removes the oldest task. It must not be called on an empty queue.
func (q *fifo) Pop() Task {
	if q.pos == len(q.head) {
		q.head, q.tail = q.tail, q.head[:0]
		q.pos = 0
	}
	t := q.head[q.pos]
	q.head[q.pos] = nil
	q.pos++
	return t
}

// Reset drops every queued task and reports how many there were.
func (q *fifo) Reset() int {
	n := q.Len()
	clear(q.head)
	clear(q.tail)
	q.head, q.tail, q.pos = nil, nil, 0
	return n
}
