package ondemand

import (
	"sync"
	"time"

	"github.com/pkommoju/alcor-control-agent/pkg/packet"
)

type Outcome int

const (
	Inserted Outcome = iota
	Deduplicated
)

func (o Outcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "deduplicated"
}

// Expired records are removed in batches, so admissions and replies
// do not wait for a whole table scan.
const expireBatchSize = 64

// Table maps identity to its pending request.
// It is the only shared mutable state of the engine. Critical sections are O(1),
// except the read-only candidate scan of Expire.
type Table struct {
	sync.Mutex
	entries map[string]*PendingRequest
}

func NewTable() *Table {
	return &Table{
		entries: make(map[string]*PendingRequest),
	}
}

// Admit inserts a new pending request for identity, unless one is already present.
// A deduplicated admission leaves the existing record untouched, its dwell time
// keeps running from the first admission. Admit takes ownership of payload.
func (t *Table) Admit(identity string, pkt *packet.Packet, payload []byte, now time.Time) (Outcome, *PendingRequest) {
	rec := &PendingRequest{
		Identity:  identity,
		CreatedAt: now,
		Payload:   payload,
		Packet:    pkt,
	}
	if pkt != nil {
		rec.IngressPort = pkt.IngressPort
		rec.Protocol = pkt.Protocol
	}

	t.Lock()
	defer t.Unlock()

	if existing, ok := t.entries[identity]; ok {
		return Deduplicated, existing
	}
	t.entries[identity] = rec

	return Inserted, rec
}

// Take removes and returns the pending request of identity.
// Only one caller may ever take a given record.
func (t *Table) Take(identity string) (*PendingRequest, bool) {
	t.Lock()
	defer t.Unlock()

	rec, ok := t.entries[identity]
	if ok {
		delete(t.entries, identity)
	}
	return rec, ok
}

// Release removes rec only if it is still the record pending for its identity.
// A newer admission of the same identity is left in place.
func (t *Table) Release(rec *PendingRequest) bool {
	t.Lock()
	defer t.Unlock()

	if t.entries[rec.Identity] != rec {
		return false
	}
	delete(t.entries, rec.Identity)
	return true
}

// Expire removes and returns all records older than dwell at now.
func (t *Table) Expire(now time.Time, dwell time.Duration) []*PendingRequest {
	var stale []*PendingRequest

	t.Lock()
	for _, rec := range t.entries {
		if now.Sub(rec.CreatedAt) > dwell {
			stale = append(stale, rec)
		}
	}
	t.Unlock()

	expired := make([]*PendingRequest, 0, len(stale))
	for start := 0; start < len(stale); start += expireBatchSize {
		end := min(start+expireBatchSize, len(stale))

		t.Lock()
		for _, rec := range stale[start:end] {
			// A reply may have consumed it since the scan
			if t.entries[rec.Identity] == rec {
				delete(t.entries, rec.Identity)
				expired = append(expired, rec)
			}
		}
		t.Unlock()
	}

	return expired
}

func (t *Table) Len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.entries)
}

// Clear drops all pending requests and returns how many were abandoned.
func (t *Table) Clear() int {
	t.Lock()
	defer t.Unlock()

	count := len(t.entries)
	t.entries = make(map[string]*PendingRequest)
	return count
}
