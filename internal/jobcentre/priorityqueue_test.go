package jobcentre

import "testing"

func TestPriorityQueueMaxReturnsHighestPriority(t *testing.T) {
	pq := &priorityQueue{}
	pq.push(&Job{ID: 1, Priority: 5})
	pq.push(&Job{ID: 2, Priority: 10})
	pq.push(&Job{ID: 3, Priority: 1})

	job, ok := pq.Max()
	if !ok || job.ID != 2 {
		t.Fatalf("got %+v, ok=%v", job, ok)
	}
}

func TestPriorityQueuePopOrdersByPriorityDescending(t *testing.T) {
	pq := &priorityQueue{}
	pq.push(&Job{ID: 1, Priority: 5})
	pq.push(&Job{ID: 2, Priority: 10})
	pq.push(&Job{ID: 3, Priority: 1})

	order := []int64{pq.pop().ID, pq.pop().ID, pq.pop().ID}
	want := []int64{2, 1, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestPriorityQueueMaxOnEmptyQueue(t *testing.T) {
	pq := &priorityQueue{}
	if _, ok := pq.Max(); ok {
		t.Fatal("expected ok=false on empty queue")
	}
}

func TestPriorityQueueDeleteRemovesJob(t *testing.T) {
	pq := &priorityQueue{}
	pq.push(&Job{ID: 1, Priority: 5})
	j2 := &Job{ID: 2, Priority: 10}
	pq.push(j2)
	pq.push(&Job{ID: 3, Priority: 1})

	pq.delete(j2)

	job, ok := pq.Max()
	if !ok || job.ID == 2 {
		t.Fatalf("expected job 2 to be removed, got %+v", job)
	}
	if pq.Len() != 2 {
		t.Fatalf("got len %d, want 2", pq.Len())
	}
}
