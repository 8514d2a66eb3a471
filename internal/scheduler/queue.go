package scheduler

import (
	"github.com/account-sync/internal/models"
)

// queueItem wraps a request with its heap index so items can be removed
// by Cancel without a full scan.
type queueItem struct {
	req   *models.SyncRequest
	index int
}

// requestQueue implements heap.Interface ordered by (priority, eligible time):
// lower priority number first, earlier eligible time breaking ties (FIFO).
type requestQueue []*queueItem

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority < q[j].req.Priority
	}
	return q[i].req.EligibleAt.Before(q[j].req.EligibleAt)
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x interface{}) {
	n := len(*q)
	item := x.(*queueItem)
	item.index = n
	*q = append(*q, item)
}

func (q *requestQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*q = old[0 : n-1]
	return item
}
