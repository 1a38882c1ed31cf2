// Package registry assigns each strategy a stable magic number: a 31-bit
// integer attached to broker-side orders so positions and closed trades can
// be attributed to the strategy that opened them, even when free-form order
// comments are truncated by the broker.
package registry

import (
	"crypto/md5" // #nosec G501 -- not used for security, only as a stable 128-bit hash
	"encoding/hex"
	"strconv"

	"github.com/sirupsen/logrus"
)

const magicModulus = 1 << 31

// Registry is a bidirectional strategy-name <-> magic-number mapping. It is
// owned by the cycle engine and mutated only on the cycle goroutine, so it
// carries no locking.
type Registry struct {
	nameToMagic map[string]int64
	magicToName map[int64]string
	log         *logrus.Logger
}

// New returns an empty registry.
func New(log *logrus.Logger) *Registry {
	return &Registry{
		nameToMagic: make(map[string]int64),
		magicToName: make(map[int64]string),
		log:         log,
	}
}

// Register assigns a magic number to the strategy name and returns it. A name
// already registered gets its existing magic back, so the mapping is stable
// for the process lifetime. The candidate magic is derived from the MD5 hash
// of the name's UTF-8 bytes reduced modulo 2^31; collisions are resolved by a
// first-free linear probe, deterministic given registration order. Magic 0 is
// reserved to mean "no attribution" at the broker boundary and is never
// assigned.
func (r *Registry) Register(name string) int64 {
	if magic, ok := r.nameToMagic[name]; ok {
		return magic
	}

	magic := candidateMagic(name)
	for {
		_, taken := r.magicToName[magic]
		if !taken && magic != 0 {
			break
		}
		if taken {
			r.log.WithFields(logrus.Fields{
				"strategy": name,
				"holder":   r.magicToName[magic],
				"magic":    magic,
			}).Warn("magic number collision, probing next slot")
		}
		magic = (magic + 1) % magicModulus
	}

	r.nameToMagic[name] = magic
	r.magicToName[magic] = name
	r.log.WithFields(logrus.Fields{"strategy": name, "magic": magic}).
		Info("strategy registered")
	return magic
}

// MagicOf returns the magic number for a registered strategy name.
func (r *Registry) MagicOf(name string) (int64, bool) {
	magic, ok := r.nameToMagic[name]
	return magic, ok
}

// NameOf is the reverse lookup, for auditing broker-side orders.
func (r *Registry) NameOf(magic int64) (string, bool) {
	name, ok := r.magicToName[magic]
	return name, ok
}

// IsRegistered reports whether the strategy name has a magic number assigned.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.nameToMagic[name]
	return ok
}

// candidateMagic reduces the first 8 hex characters of the MD5 digest modulo
// 2^31, matching the attribution scheme used by the account's existing
// positions.
func candidateMagic(name string) int64 {
	sum := md5.Sum([]byte(name)) // #nosec G401
	head := hex.EncodeToString(sum[:])[:8]
	v, err := strconv.ParseInt(head, 16, 64)
	if err != nil {
		// Unreachable: head is always 8 hex characters.
		return 0
	}
	return v % magicModulus
}
