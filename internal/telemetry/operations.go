package telemetry

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a tracked transaction.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// TxnState records one engine transaction's lifecycle for operational
// visibility: when it began, how long it ran, and how it ended.
type TxnState struct {
	TxnID       string                 `json:"txn_id"`
	Status      Status                 `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Duration    string                 `json:"duration,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Stats is aggregated counts across every transaction the Tracker has
// retained.
type Stats struct {
	Total           int            `json:"total"`
	ByStatus        map[Status]int `json:"by_status"`
	AverageDuration string         `json:"average_duration,omitempty"`
}

// Tracker keeps a bounded, most-recent-first window of transaction
// states in memory, letting an operator inspect in-flight and recently
// finished commits without a separate audit store. It evicts the oldest
// entry once MaxTransactions is reached, the same capacity-bounded
// retention the teacher framework uses for its own operation tracking.
type Tracker struct {
	mu              sync.RWMutex
	transactions    map[string]*TxnState
	maxTransactions int
}

// NewTracker returns a Tracker retaining at most maxTransactions entries.
// A non-positive value defaults to 1000.
func NewTracker(maxTransactions int) *Tracker {
	if maxTransactions <= 0 {
		maxTransactions = 1000
	}
	return &Tracker{
		transactions:    make(map[string]*TxnState),
		maxTransactions: maxTransactions,
	}
}

// Begin records a new running transaction.
func (t *Tracker) Begin(txnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.transactions) >= t.maxTransactions {
		t.evictOldest()
	}
	t.transactions[txnID] = &TxnState{
		TxnID:     txnID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// Commit marks txnID as committed.
func (t *Tracker) Commit(txnID string) { t.finish(txnID, StatusCommitted, nil) }

// Fail marks txnID as failed, recording err's message.
func (t *Tracker) Fail(txnID string, err error) { t.finish(txnID, StatusFailed, err) }

func (t *Tracker) finish(txnID string, status Status, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	txn, ok := t.transactions[txnID]
	if !ok {
		return
	}
	now := time.Now()
	txn.CompletedAt = &now
	txn.Duration = now.Sub(txn.StartedAt).String()
	txn.Status = status
	if err != nil {
		txn.Error = err.Error()
	}
}

// Get returns a copy of the tracked state for txnID, or nil if unknown.
func (t *Tracker) Get(txnID string) *TxnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	txn, ok := t.transactions[txnID]
	if !ok {
		return nil
	}
	cp := *txn
	return &cp
}

// List returns a copy of every tracked transaction.
func (t *Tracker) List() []*TxnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TxnState, 0, len(t.transactions))
	for _, txn := range t.transactions {
		cp := *txn
		out = append(out, &cp)
	}
	return out
}

// Stats returns aggregated counts across every tracked transaction.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{Total: len(t.transactions), ByStatus: make(map[Status]int)}
	var totalDuration time.Duration
	var completed int
	for _, txn := range t.transactions {
		stats.ByStatus[txn.Status]++
		if txn.CompletedAt != nil {
			totalDuration += txn.CompletedAt.Sub(txn.StartedAt)
			completed++
		}
	}
	if completed > 0 {
		stats.AverageDuration = (totalDuration / time.Duration(completed)).String()
	}
	return stats
}

func (t *Tracker) evictOldest() {
	var oldestID string
	var oldestTime time.Time
	for id, txn := range t.transactions {
		if oldestID == "" || txn.StartedAt.Before(oldestTime) {
			oldestID = id
			oldestTime = txn.StartedAt
		}
	}
	if oldestID != "" {
		delete(t.transactions, oldestID)
	}
}
