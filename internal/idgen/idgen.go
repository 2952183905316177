// Package idgen mints transaction IDs.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// TransactionPrefix starts every generated transaction ID.
const TransactionPrefix = "txn_"

// TransactionID returns "txn_" + base36 nanosecond timestamp + "_" + 12 random
// hex chars. The timestamp orders IDs; the 48-bit suffix separates IDs minted
// in the same nanosecond.
func TransactionID(t time.Time) string {
	return TransactionPrefix + strconv.FormatInt(t.UnixNano(), 36) + "_" + Hex(6)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
