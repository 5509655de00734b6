package domain

import "time"

// NonceTTL is how long a registered nonce remains usable.
const NonceTTL = 3 * time.Second

// MaxOutstandingNonces is the per-(src,dst) cap on live nonces (spec §3
// invariant): it bounds nonce-storm amplification from repeated
// SECURITY_NONCE_GET floods.
const MaxOutstandingNonces = 3

// Nonce8 is the 8-byte nonce exchanged in SECURITY_NONCE_GET/REPORT. The
// first byte is the receiver index (RI) used to match a nonce to the
// frame that consumes it.
type Nonce8 [8]byte

// RI returns the receiver index: the nonce's first byte.
func (n Nonce8) RI() byte { return n[0] }

// Nonce is a registered nonce entry in the global nonce table.
type Nonce struct {
	Src     NodeID
	Dst     NodeID
	Mine    bool // true if we generated it (used to answer a NONCE_GET)
	Value   Nonce8
	Expiry  time.Time
}

// Expired reports whether the nonce has outlived its TTL as of now.
func (n Nonce) Expired(now time.Time) bool {
	return now.After(n.Expiry)
}

// BlacklistSize is the capacity of the per-source duplicate-nonce ring
// buffer.
const BlacklistSize = 10
