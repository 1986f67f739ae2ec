package services

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/quizgate/internal/models"
	"github.com/cespare/xxhash/v2"
)

// LedgerConfig holds the thresholds for per-client abuse tracking
type LedgerConfig struct {
	MaxConsecutiveFailures int
	BlockDuration          time.Duration
	MinAttemptInterval     time.Duration
	Retention              time.Duration
	Shards                 int
	// RecentWindow bounds the "recent activity" section of snapshots
	RecentWindow time.Duration
	// Now overrides the clock; nil means time.Now
	Now func() time.Time
}

// DefaultLedgerConfig returns the production thresholds
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxConsecutiveFailures: 5,
		BlockDuration:          15 * time.Minute,
		MinAttemptInterval:     time.Second,
		Retention:              24 * time.Hour,
		Shards:                 32,
		RecentWindow:           time.Hour,
	}
}

// LedgerSnapshot is a point-in-time view of the ledger for management
type LedgerSnapshot struct {
	TrackedClients int                           `json:"trackedClients"`
	Blocked        []models.ClientSecurityRecord `json:"blocked"`
	Recent         []models.ClientSecurityRecord `json:"recent"`
}

type ledgerShard struct {
	mu      sync.Mutex
	records map[string]*models.ClientSecurityRecord
	// inflight holds clients with an admitted attempt whose outcome is not yet settled
	inflight map[string]struct{}
}

// ClientLedger tracks attempts, consecutive failures and temporary blocks per
// client identity. Records are spread over shards by key hash, each with its
// own lock, so one noisy client does not stall unrelated ones.
type ClientLedger struct {
	shards []*ledgerShard
	config LedgerConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewClientLedger creates an empty ledger
func NewClientLedger(config LedgerConfig, logger *slog.Logger) *ClientLedger {
	if config.Shards < 1 {
		config.Shards = 1
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	shards := make([]*ledgerShard, config.Shards)
	for i := range shards {
		shards[i] = &ledgerShard{
			records:  make(map[string]*models.ClientSecurityRecord),
			inflight: make(map[string]struct{}),
		}
	}

	return &ClientLedger{
		shards: shards,
		config: config,
		now:    now,
		logger: logger,
	}
}

func (l *ClientLedger) shardFor(clientID string) *ledgerShard {
	return l.shards[xxhash.Sum64String(clientID)%uint64(len(l.shards))]
}

// Admit checks the block and MinAttemptInterval and reserves the client's
// single attempt slot, all under the shard lock. A client with an attempt in
// flight gets ErrRateLimitExceeded. Every successful Admit must be paired with
// Release.
func (l *ClientLedger) Admit(clientID string) error {
	now := l.now()
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if rec, ok := shard.records[clientID]; ok {
		blocked, updated := models.EvaluateBlock(*rec, now)
		*rec = updated
		if blocked {
			return models.ErrClientBlocked
		}
		if !rec.LastAttempt.IsZero() && now.Sub(rec.LastAttempt) < l.config.MinAttemptInterval {
			return models.ErrRateLimitExceeded
		}
	}

	if _, busy := shard.inflight[clientID]; busy {
		return models.ErrRateLimitExceeded
	}
	shard.inflight[clientID] = struct{}{}
	return nil
}

// Release drops the reservation taken by Admit
func (l *ClientLedger) Release(clientID string) {
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	delete(shard.inflight, clientID)
	shard.mu.Unlock()
}

// RecordAttempt registers the outcome of a verification attempt. It reports
// whether this attempt caused the client to become blocked.
func (l *ClientLedger) RecordAttempt(clientID string, success bool) bool {
	now := l.now()
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[clientID]
	if !ok {
		rec = &models.ClientSecurityRecord{ClientID: clientID, FirstSeen: now}
		shard.records[clientID] = rec
	}

	wasBlocked, updated := models.EvaluateBlock(*rec, now)
	*rec = updated

	rec.Attempts++
	rec.LastAttempt = now

	if success {
		rec.FailedAttempts = 0
		return false
	}

	rec.FailedAttempts++
	if wasBlocked || rec.FailedAttempts < l.config.MaxConsecutiveFailures {
		return false
	}

	until := now.Add(l.config.BlockDuration)
	rec.IsBlocked = true
	rec.BlockUntil = &until

	l.logger.Warn("client blocked after consecutive failures",
		slog.String("client_id", clientID),
		slog.Int("failed_attempts", rec.FailedAttempts),
		slog.Time("block_until", until))
	return true
}

// IsBlocked reports whether the client is currently blocked. An elapsed
// block is cleared as a side effect.
func (l *ClientLedger) IsBlocked(clientID string) bool {
	now := l.now()
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[clientID]
	if !ok {
		return false
	}

	blocked, updated := models.EvaluateBlock(*rec, now)
	*rec = updated
	return blocked
}

// CheckRate reports whether the client's last recorded attempt was less than
// MinAttemptInterval ago
func (l *ClientLedger) CheckRate(clientID string) bool {
	now := l.now()
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[clientID]
	if !ok || rec.LastAttempt.IsZero() {
		return false
	}
	return now.Sub(rec.LastAttempt) < l.config.MinAttemptInterval
}

// Unblock clears a client's block and failure count
func (l *ClientLedger) Unblock(clientID string) error {
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[clientID]
	if !ok {
		return models.ErrNotFound
	}

	rec.IsBlocked = false
	rec.BlockUntil = nil
	rec.FailedAttempts = 0
	return nil
}

// Record returns a copy of a client's record
func (l *ClientLedger) Record(clientID string) (models.ClientSecurityRecord, bool) {
	shard := l.shardFor(clientID)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[clientID]
	if !ok {
		return models.ClientSecurityRecord{}, false
	}
	return copyRecord(rec), true
}

// Len returns the number of tracked clients
func (l *ClientLedger) Len() int {
	n := 0
	for _, shard := range l.shards {
		shard.mu.Lock()
		n += len(shard.records)
		shard.mu.Unlock()
	}
	return n
}

// Sweep drops records first seen before the retention window that are not
// blocked at now. It returns the number of records removed.
func (l *ClientLedger) Sweep(now time.Time) int {
	cutoff := now.Add(-l.config.Retention)
	removed := 0

	for _, shard := range l.shards {
		shard.mu.Lock()
		for id, rec := range shard.records {
			blocked, updated := models.EvaluateBlock(*rec, now)
			*rec = updated
			if !blocked && rec.FirstSeen.Before(cutoff) {
				delete(shard.records, id)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	return removed
}

// Snapshot lists blocked clients and clients active within RecentWindow,
// most recent first
func (l *ClientLedger) Snapshot(now time.Time) LedgerSnapshot {
	snap := LedgerSnapshot{
		Blocked: make([]models.ClientSecurityRecord, 0),
		Recent:  make([]models.ClientSecurityRecord, 0),
	}
	recentSince := now.Add(-l.config.RecentWindow)

	for _, shard := range l.shards {
		shard.mu.Lock()
		snap.TrackedClients += len(shard.records)
		for _, rec := range shard.records {
			blocked, updated := models.EvaluateBlock(*rec, now)
			*rec = updated
			if blocked {
				snap.Blocked = append(snap.Blocked, copyRecord(rec))
			}
			if !rec.LastAttempt.Before(recentSince) {
				snap.Recent = append(snap.Recent, copyRecord(rec))
			}
		}
		shard.mu.Unlock()
	}

	byLastAttempt := func(recs []models.ClientSecurityRecord) {
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].LastAttempt.After(recs[j].LastAttempt)
		})
	}
	byLastAttempt(snap.Blocked)
	byLastAttempt(snap.Recent)

	return snap
}

func copyRecord(rec *models.ClientSecurityRecord) models.ClientSecurityRecord {
	cp := *rec
	if rec.BlockUntil != nil {
		t := *rec.BlockUntil
		cp.BlockUntil = &t
	}
	return cp
}
