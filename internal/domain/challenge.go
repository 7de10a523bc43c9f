package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ChallengeKind identifies one of the closed set of signed-challenge
// message shapes the engine accepts, per the external-interfaces table.
type ChallengeKind string

const (
	ChallengeCreatePool    ChallengeKind = "AEGIX_CREATE_POOL"
	ChallengeMainPool      ChallengeKind = "AEGIX_MAIN_POOL"
	ChallengeCustomPool    ChallengeKind = "AEGIX_CUSTOM_POOL"
	ChallengeFundPool      ChallengeKind = "AEGIX_FUND_POOL"
	ChallengeTransfer      ChallengeKind = "AEGIX_TRANSFER"
	ChallengeSessionGrant  ChallengeKind = "AEGIX_SESSION_GRANT"
	ChallengeSessionRevoke ChallengeKind = "AEGIX_SESSION_REVOKE"
	ChallengeDeletePool    ChallengeKind = "AEGIX_DELETE_POOL"
	ChallengeExportKey     ChallengeKind = "AEGIX_EXPORT_KEY"
)

// Challenge is a parsed signed-challenge message. Which fields are
// populated depends on Kind; callers must switch on Kind before reading
// fields beyond Timestamp.
type Challenge struct {
	Kind      ChallengeKind
	Owner     string
	AgentID   string
	Source    string
	Target    string
	Amount    string
	PoolID    string
	Timestamp int64
}

const fieldSep = "::"

// ParseChallenge parses msg against the closed set of challenge shapes
// named in the external-interfaces table. No two distinct challenge kinds
// share a valid parse: the prefix before the first "::" uniquely selects
// the kind, and a kind that does not match the expected field count is
// rejected rather than silently reinterpreted as another kind.
func ParseChallenge(msg string) (*Challenge, error) {
	parts := strings.Split(msg, fieldSep)
	if len(parts) < 2 {
		return nil, fmt.Errorf("domain: malformed challenge message %q", msg)
	}

	kind := ChallengeKind(parts[0])
	switch kind {
	case ChallengeCreatePool, ChallengeMainPool, ChallengeCustomPool:
		if len(parts) != 3 {
			return nil, fmt.Errorf("domain: %s expects 3 fields, got %d", kind, len(parts))
		}
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("domain: %s malformed timestamp: %w", kind, err)
		}
		return &Challenge{Kind: kind, Owner: parts[1], Timestamp: ts}, nil

	case ChallengeFundPool, ChallengeTransfer:
		if len(parts) != 5 {
			return nil, fmt.Errorf("domain: %s expects 5 fields, got %d", kind, len(parts))
		}
		ts, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("domain: %s malformed timestamp: %w", kind, err)
		}
		return &Challenge{Kind: kind, Source: parts[1], Target: parts[2], Amount: parts[3], Timestamp: ts}, nil

	case ChallengeSessionGrant, ChallengeSessionRevoke:
		if len(parts) != 4 {
			return nil, fmt.Errorf("domain: %s expects 4 fields, got %d", kind, len(parts))
		}
		ts, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("domain: %s malformed timestamp: %w", kind, err)
		}
		return &Challenge{Kind: kind, AgentID: parts[1], Owner: parts[2], Timestamp: ts}, nil

	case ChallengeDeletePool, ChallengeExportKey:
		if len(parts) != 4 {
			return nil, fmt.Errorf("domain: %s expects 4 fields, got %d", kind, len(parts))
		}
		ts, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("domain: %s malformed timestamp: %w", kind, err)
		}
		return &Challenge{Kind: kind, PoolID: parts[1], Owner: parts[2], Timestamp: ts}, nil

	default:
		return nil, fmt.Errorf("domain: unknown challenge kind %q", parts[0])
	}
}

// FormatCreatePool renders the AEGIX_CREATE_POOL challenge message.
func FormatCreatePool(owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%d", ChallengeCreatePool, owner, tsMillis)
}

// FormatMainPool renders the AEGIX_MAIN_POOL challenge message.
func FormatMainPool(owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%d", ChallengeMainPool, owner, tsMillis)
}

// FormatCustomPool renders the AEGIX_CUSTOM_POOL challenge message.
func FormatCustomPool(owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%d", ChallengeCustomPool, owner, tsMillis)
}

// FormatFundPool renders the AEGIX_FUND_POOL challenge message.
func FormatFundPool(source, target, amount string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%s::%s::%d", ChallengeFundPool, source, target, amount, tsMillis)
}

// FormatTransfer renders the AEGIX_TRANSFER challenge message.
func FormatTransfer(source, target, amount string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%s::%s::%d", ChallengeTransfer, source, target, amount, tsMillis)
}

// FormatSessionGrant renders the AEGIX_SESSION_GRANT challenge message.
func FormatSessionGrant(agentID, owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%s::%d", ChallengeSessionGrant, agentID, owner, tsMillis)
}

// FormatSessionRevoke renders the AEGIX_SESSION_REVOKE challenge message.
func FormatSessionRevoke(agentID, owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%s::%d", ChallengeSessionRevoke, agentID, owner, tsMillis)
}

// FormatDeletePool renders the AEGIX_DELETE_POOL challenge message.
func FormatDeletePool(poolID, owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%s::%d", ChallengeDeletePool, poolID, owner, tsMillis)
}

// FormatExportKey renders the AEGIX_EXPORT_KEY challenge message.
func FormatExportKey(poolID, owner string, tsMillis int64) string {
	return fmt.Sprintf("%s::%s::%s::%d", ChallengeExportKey, poolID, owner, tsMillis)
}

// DecryptChallenge renders the exact-match DECRYPT_POOL_KEY_{pool_id}
// challenge used by export_key's decryption step. It carries no
// timestamp and must match exactly.
func DecryptChallenge(poolID string) string {
	return "DECRYPT_POOL_KEY_" + poolID
}
