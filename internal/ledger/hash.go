package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DomainEntry is the domain-separation prefix for entry digests.
// The version suffix leaves room for a future algorithm migration.
const DomainEntry = "custody/entry/v1"

// GenesisHash is the prevHash of entry 0. It is a fixed constant, never the
// output of ComputeHash: a SHA-256 digest of all zero bits is not reachable
// in practice.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HashLength is the length of a hex-encoded digest.
const HashLength = 64

// TimestampLayout is the exact text form of an entry timestamp inside the
// hash preimage. Fixed width, microsecond precision, always UTC.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// HashInput holds every stored field that the digest binds.
//
// The five chain fields (Index, PrevHash, Timestamp, Payload, Nonce) are
// joined by the entry metadata, so that rewriting who did what to which
// tenant is as detectable as rewriting the payload.
type HashInput struct {
	Index     int64
	PrevHash  string
	Timestamp time.Time
	EventType string
	Actor     string
	TenantID  string
	Payload   Object
	Nonce     int64
}

// ComputeHash returns the hex SHA-256 digest of an entry.
// Format: SHA256(DomainEntry + 0x00 + canonicalJSON(fields)).
// Fails with a SerializationError only if the payload cannot be
// canonically serialized.
func ComputeHash(in HashInput) (string, error) {
	payload := in.Payload
	if payload == nil {
		payload = Object{}
	}

	obj := Object{
		"index":      Int(in.Index),
		"prev_hash":  String(in.PrevHash),
		"timestamp":  String(FormatTimestamp(in.Timestamp)),
		"event_type": String(in.EventType),
		"actor":      String(in.Actor),
		"tenant_id":  String(in.TenantID),
		"payload":    payload,
		"nonce":      Int(in.Nonce),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", NewSerializationError(err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}

// HashEntry recomputes the digest of a stored entry from its fields.
func HashEntry(e Entry) (string, error) {
	return ComputeHash(HashInput{
		Index:     e.Index,
		PrevHash:  e.PrevHash,
		Timestamp: e.Timestamp,
		EventType: e.EventType,
		Actor:     e.Actor,
		TenantID:  e.TenantID,
		Payload:   e.Payload,
		Nonce:     e.Nonce,
	})
}

// MustHashEntry is like HashEntry but panics on error.
// Use only in tests or when the payload is known to be valid.
func MustHashEntry(e Entry) string {
	h, err := HashEntry(e)
	if err != nil {
		panic(err)
	}
	return h
}

// hashWithDomain computes SHA-256 with domain separation.
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeTimestamp converts t to the precision stored in the ledger.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return NormalizeTimestamp(t).Format(TimestampLayout)
}

// ParseTimestamp parses text written by FormatTimestamp. Any other layout is
// rejected so that stored text and hashed text cannot drift apart.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// IsHash reports whether s looks like a hex-encoded SHA-256 digest.
func IsHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f')
	}) < 0
}
