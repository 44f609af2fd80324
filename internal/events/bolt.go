package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var bucketPending = []byte("pending")

const replayBatch = 64

// BoltQueue is a durable outbox. Published events are written to a bbolt
// bucket keyed by a monotonically increasing sequence and delivered in that
// order. Ack deletes the entry; anything left unacknowledged is delivered
// again when the queue is reopened.
type BoltQueue struct {
	db *bbolt.DB

	out     chan Event
	notify  chan struct{}
	closing chan struct{}
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	// cursor is the last sequence handed to the consumer; only the
	// dispatch goroutine touches it
	cursor uint64
}

// OpenBoltQueue opens or creates the outbox at path and starts delivering
// any events left pending by a previous run
func OpenBoltQueue(path string) (*BoltQueue, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open event outbox: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPending); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketPending, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	q := &BoltQueue{
		db:      db,
		out:     make(chan Event),
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.dispatch()
	return q, nil
}

// Publish persists ev before returning
func (q *BoltQueue) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	err := q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPending)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *BoltQueue) Events() <-chan Event {
	return q.out
}

// Ack removes ev from the outbox
func (q *BoltQueue) Ack(ctx context.Context, ev Event) error {
	if ev.seq == 0 {
		return nil
	}
	err := q.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete(itob(ev.seq))
	})
	if err != nil {
		return fmt.Errorf("failed to ack event %s: %w", ev.ID, err)
	}
	return nil
}

// Pending counts events not yet acknowledged, including delivered ones
func (q *BoltQueue) Pending() (int, error) {
	var n int
	err := q.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketPending).Stats().KeyN
		return nil
	})
	return n, err
}

// Close stops delivery and closes the database. Unacknowledged events stay
// in the outbox for the next run.
func (q *BoltQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.closing)
	<-q.done
	return q.db.Close()
}

func (q *BoltQueue) dispatch() {
	defer close(q.done)
	defer close(q.out)

	for {
		batch, err := q.readAfter(q.cursor, replayBatch)
		if err != nil {
			// Retry on the next notification
			batch = nil
		}

		for _, ev := range batch {
			select {
			case q.out <- ev:
				q.cursor = ev.seq
			case <-q.closing:
				return
			}
		}
		if len(batch) == replayBatch {
			continue
		}

		select {
		case <-q.notify:
		case <-q.closing:
			return
		}
	}
}

func (q *BoltQueue) readAfter(after uint64, limit int) ([]Event, error) {
	var batch []Event
	err := q.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPending).Cursor()
		for k, v := c.Seek(itob(after + 1)); k != nil && len(batch) < limit; k, v = c.Next() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				// Undecodable entries can never be processed
				if err := c.Delete(); err != nil {
					return err
				}
				continue
			}
			ev.seq = binary.BigEndian.Uint64(k)
			batch = append(batch, ev)
		}
		return nil
	})
	return batch, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
