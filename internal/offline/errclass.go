// Package offline implements the offline-resilient storage mirroring
// subsystem: primary-first execution with transparent mirror fallback, a
// disk-persisted queue of mutation intents, and conflict-resolving replay
// once connectivity returns.
package offline

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// ErrorKind classifies a primary-store failure. Only connectivity-class
// failures engage the offline fallback; integrity and not-found failures
// propagate to the caller unchanged.
type ErrorKind int

const (
	// KindUnknown is any failure the classifier cannot place.
	KindUnknown ErrorKind = iota

	// KindConnectivity is a network or database-unreachable failure.
	KindConnectivity

	// KindIntegrity is a schema or constraint failure.
	KindIntegrity

	// KindNotFound is a missing-record failure.
	KindNotFound
)

// String returns the kind name used in logs and signatures.
func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindIntegrity:
		return "integrity"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// connectivitySubstrings are driver message fragments that indicate the
// database itself is unreachable rather than rejecting the statement.
var connectivitySubstrings = []string{
	"database is closed",
	"unable to open database",
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o error",
	"disk i/o",
	"no such host",
	"network is unreachable",
}

// integritySubstrings are driver message fragments that indicate a schema
// or constraint failure. The statement was rejected, the store is alive.
var integritySubstrings = []string{
	"unique constraint failed",
	"constraint failed",
	"no such table",
	"no such column",
	"foreign key constraint",
}

// Classify places a primary-store error into an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, storage.ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, storage.ErrAlreadyExists) {
		return KindIntegrity
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, storage.ErrStorageClosed) {
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range integritySubstrings {
		if strings.Contains(msg, sub) {
			return KindIntegrity
		}
	}
	for _, sub := range connectivitySubstrings {
		if strings.Contains(msg, sub) {
			return KindConnectivity
		}
	}

	return KindUnknown
}

// Signature normalizes an error into a stable string used to deduplicate
// warning logs. Digits are collapsed so messages differing only in ids,
// ports or offsets produce the same signature.
func Signature(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	var b strings.Builder
	b.Grow(len(msg))
	lastDigit := false
	for _, r := range msg {
		if r >= '0' && r <= '9' {
			if !lastDigit {
				b.WriteByte('#')
			}
			lastDigit = true
			continue
		}
		lastDigit = false
		b.WriteRune(r)
	}

	sig := b.String()
	const maxLen = 160
	if len(sig) > maxLen {
		sig = sig[:maxLen]
	}

	return Classify(err).String() + ":" + sig
}
