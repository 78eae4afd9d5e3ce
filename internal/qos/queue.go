package qos

import (
	"errors"
	"sync"
	"time"

	"github.com/efecan0/trading-gateway-go/internal/frame"
	"github.com/efecan0/trading-gateway-go/internal/logger"
)

// Sender pushes encoded frame bytes onto the session's current connection.
type Sender func(data []byte) error

var ErrQueueClosed = errors.New("qos: queue closed")

// Pending is an outbound DATA frame awaiting its ACK.
type Pending struct {
	MsgID       uint64
	Method      string
	Encoded     []byte
	FirstSentAt time.Time
	Attempts    int
	NextRetryAt time.Time
}

// Queue holds one session's outbound state: the monotonic msgId counter and
// the unacked pending entries in send order. All sends for a session go
// through the queue mutex, which is what keeps msgId order on the wire.
type Queue struct {
	sessionID string
	opts      Options
	log       logger.ConnLogger

	mu          sync.Mutex
	nextID      uint64
	pending     map[uint64]*Pending
	order       []uint64
	sender      Sender
	attachEpoch uint64
	closed      bool
}

func newQueue(sessionID string, opts Options) *Queue {
	return &Queue{
		sessionID: sessionID,
		opts:      opts,
		log:       logger.Conn(sessionID),
		pending:   make(map[uint64]*Pending),
	}
}

// Send assigns the next msgId, records the pending entry and pushes the frame
// when a connection is attached. Disconnected sessions still accumulate
// pending entries; they are replayed on Attach.
func (q *Queue) Send(method string, payload []byte) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	q.nextID++
	msgID := q.nextID

	encoded, err := frame.EncodeData(msgID, method, payload)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	p := &Pending{
		MsgID:       msgID,
		Method:      method,
		Encoded:     encoded,
		FirstSentAt: now,
		NextRetryAt: now.Add(q.opts.BaseRetry),
	}
	q.pending[msgID] = p
	q.order = append(q.order, msgID)

	if q.sender != nil {
		if err := q.sender(encoded); err != nil {
			q.log.WarnF("Fail to send DATA frame %d, waiting for retry, details: %v", msgID, err)
		}
	}
	return msgID, nil
}

// Ack removes the matching pending entry. Unknown ids are ignored; the client
// may ack a frame that already exhausted its retries.
func (q *Queue) Ack(msgID uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[msgID]; !ok {
		return false
	}
	delete(q.pending, msgID)
	q.dropFromOrder(msgID)
	return true
}

// Attach binds a connection and replays every pending frame in original msgId
// order before the caller starts accepting new inbound frames. The returned
// epoch identifies this binding for Detach: a reconnect that superseded us
// keeps its own sender.
func (q *Queue) Attach(sender Sender) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sender = sender
	q.attachEpoch++
	epoch := q.attachEpoch

	now := time.Now()
	for _, msgID := range q.order {
		p := q.pending[msgID]
		if p == nil {
			continue
		}
		q.log.DebugF("Replaying pending frame %d (%s)", msgID, p.Method)
		if err := sender(p.Encoded); err != nil {
			q.log.WarnF("Replay of frame %d failed, details: %v", msgID, err)
			break
		}
		p.NextRetryAt = now.Add(q.opts.BaseRetry)
	}
	return epoch
}

// Detach clears the sender bound under epoch. Returns false when a newer
// connection already replaced it.
func (q *Queue) Detach(epoch uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if epoch != q.attachEpoch {
		return false
	}
	q.sender = nil
	return true
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// PendingIDs returns the unacked msgIds in send order.
func (q *Queue) PendingIDs() []uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]uint64, 0, len(q.order))
	for _, id := range q.order {
		if _, ok := q.pending[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (q *Queue) dropFromOrder(msgID uint64) {
	for i, id := range q.order {
		if id == msgID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// retryPass resends due entries and discards the exhausted ones. Returns how
// many entries exhausted their attempts. Detached queues keep their state
// untouched so a reconnect can resume it.
func (q *Queue) retryPass(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sender == nil {
		return 0
	}

	failed := 0
	for _, msgID := range append([]uint64(nil), q.order...) {
		p := q.pending[msgID]
		if p == nil || now.Before(p.NextRetryAt) {
			continue
		}
		if p.Attempts >= q.opts.MaxAttempts {
			q.log.WarnF("Frame %d (%s) exhausted %d attempts, dropping", msgID, p.Method, p.Attempts)
			delete(q.pending, msgID)
			q.dropFromOrder(msgID)
			failed++
			continue
		}
		p.Attempts++
		p.NextRetryAt = now.Add(q.opts.backoff(p.Attempts))
		if err := q.sender(p.Encoded); err != nil {
			q.log.WarnF("Retransmission of frame %d failed, details: %v", msgID, err)
		}
	}
	return failed
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.sender = nil
	q.pending = make(map[uint64]*Pending)
	q.order = nil
}
