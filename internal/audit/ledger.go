// Package audit implements AuditLedger: an append-only per-owner record
// of every payment leg, per spec §4.7. Storage is mediated by
// internal/sealedmap so entries are only enumerable by the owner holding
// the decryption capability, matching the teacher's own append-only
// ledger pattern for transaction history.
package audit

import (
	"context"
	"time"

	"github.com/aegix-network/aegix/internal/domain"
	"github.com/aegix-network/aegix/internal/errors"
	"github.com/aegix-network/aegix/internal/sealedmap"
)

// Entry is one append-only audit record.
type Entry struct {
	SessionID       string         `json:"session_id"`
	LegKind         domain.LegKind `json:"leg_kind"`
	ChainSignature  string         `json:"chain_signature,omitempty"`
	Amount          uint64         `json:"amount,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	PrivacyFlags    []string       `json:"privacy_flags,omitempty"`
	FailureCategory string         `json:"failure_category,omitempty"`
}

// Ledger appends and enumerates audit entries through a SealedMap.
type Ledger struct {
	store *sealedmap.SealedMap
	now   func() time.Time
}

// New constructs a Ledger over sm.
func New(sm *sealedmap.SealedMap) *Ledger {
	return &Ledger{store: sm, now: time.Now}
}

// Append records one leg under owner, keyed so that multiple legs of the
// same session never collide. SealedMap calls are idempotent, so a
// duplicate Append (e.g. from a retried leg) is tolerated: the second
// write simply overwrites the same key with identical content.
func (l *Ledger) Append(ctx context.Context, owner string, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	key := entryKey(entry.SessionID, entry.LegKind, entry.Timestamp)
	if err := l.store.Save(ctx, owner, key, entry); err != nil {
		return errors.Internal(err, "audit: append entry for session %s", entry.SessionID)
	}
	return nil
}

// List enumerates every entry recorded under owner.
func (l *Ledger) List(ctx context.Context, owner string) ([]Entry, error) {
	records, err := l.store.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		var e Entry
		if err := sealedmap.DecodeInto(rec, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ForSession filters List to one payment session, the shape the
// payment-status HTTP endpoint needs.
func (l *Ledger) ForSession(ctx context.Context, owner, sessionID string) ([]Entry, error) {
	all, err := l.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func entryKey(sessionID string, kind domain.LegKind, ts time.Time) string {
	return sessionID + ":" + string(kind) + ":" + ts.Format(time.RFC3339Nano)
}
