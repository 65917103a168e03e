package statesync

import "github.com/ethereum/go-ethereum/common/prque"

// requestQueue orders PendingRequests by descending depth: deeper nodes
// pop first, which keeps the working set of parents small by draining the
// deepest subtrees before broad shallow ones (see design notes on depth
// accounting). Priority is pushed as the depth itself, so that prque's
// max-heap semantics ("largest priority pops first") yield "largest depth
// pops first".
type requestQueue struct {
	q *prque.Prque[int64, *PendingRequest]
}

func newRequestQueue() *requestQueue {
	return &requestQueue{q: prque.New[int64, *PendingRequest](nil)}
}

func (q *requestQueue) Push(req *PendingRequest) {
	q.q.Push(req, int64(req.Depth))
}

// PopN removes up to n entries in descending-depth order and returns
// their requests. Ties between equal-depth requests resolve in whatever
// order the underlying heap happens to produce.
func (q *requestQueue) PopN(n int) []*PendingRequest {
	if n > q.q.Size() {
		n = q.q.Size()
	}
	if n <= 0 {
		return nil
	}
	out := make([]*PendingRequest, 0, n)
	for i := 0; i < n; i++ {
		req, _ := q.q.Pop()
		out = append(out, req)
	}
	return out
}

func (q *requestQueue) Len() int {
	return q.q.Size()
}
