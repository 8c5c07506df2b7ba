package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// CommitEvent is the payload broadcast over Postgres NOTIFY whenever a
// transaction reaches the committed state. docview and any other external
// projection subscribe through a CommitNotifier rather than being wired
// directly into the engine.
type CommitEvent struct {
	TxnID         string    `json:"txn_id"`
	ResourceCount int       `json:"resource_count"`
	CommittedAt   time.Time `json:"committed_at"`
}

// CommitHandler receives dispatched commit events. Handlers run
// concurrently and must not block the notifier's read loop.
type CommitHandler func(event *CommitEvent)

// CommitNotifier subscribes to a Postgres NOTIFY channel and fans committed
// transactions out to registered handlers, reconnecting on transient
// connection loss the way a long-lived listener must.
type CommitNotifier struct {
	pool    *pgxpool.Pool
	channel string
	log     *logrus.Entry

	mu       sync.RWMutex
	handlers []CommitHandler
	running  bool
	cancel   context.CancelFunc
}

// NewCommitNotifier builds a notifier bound to channel on pool. Call Start
// to begin listening.
func NewCommitNotifier(pool *pgxpool.Pool, channel string, log *logrus.Entry) *CommitNotifier {
	return &CommitNotifier{pool: pool, channel: channel, log: log}
}

// OnCommit registers a handler invoked for every CommitEvent received
// after registration.
func (n *CommitNotifier) OnCommit(h CommitHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, h)
}

// Start begins the LISTEN loop in a background goroutine. Calling Start on
// an already-running notifier is a no-op.
func (n *CommitNotifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.running = true
	n.mu.Unlock()

	go n.loop(ctx)
}

// Stop cancels the listen loop. Safe to call more than once.
func (n *CommitNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.running = false
	n.cancel()
}

func (n *CommitNotifier) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := n.listen(ctx); err != nil {
				n.log.WithError(err).Warn("commit notifier disconnected, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (n *CommitNotifier) listen(ctx context.Context) error {
	conn, err := n.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", n.channel)); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	n.log.WithField("channel", n.channel).Info("commit notifier listening")

	for {
		notice, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		var event CommitEvent
		if err := json.Unmarshal([]byte(notice.Payload), &event); err != nil {
			n.log.WithError(err).Warn("dropping malformed commit notification")
			continue
		}
		n.dispatch(&event)
	}
}

func (n *CommitNotifier) dispatch(event *CommitEvent) {
	n.mu.RLock()
	handlers := make([]CommitHandler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	for _, h := range handlers {
		go h(event)
	}
}

// Publish sends a CommitEvent on channel using pg_notify. Call this from
// the same transaction that committed, or immediately after, so listeners
// never observe a notification for a transaction that is not yet visible.
func Publish(ctx context.Context, pool *pgxpool.Pool, channel string, event *CommitEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal commit event: %w", err)
	}
	_, err = pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload))
	return err
}
