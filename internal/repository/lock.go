package repository

import (
	"crypto/sha256"
	"encoding/binary"
)

// ticketLockKeys derives the advisory lock key pair for a ticket.
// SHA-256 of the ticket id truncated to 64 bits and split across the
// two-int32 form of pg_try_advisory_xact_lock, so escalation and
// reassignment contend on the full 64-bit key space rather than a
// narrow generic hash.
func ticketLockKeys(ticketID string) (int32, int32) {
	sum := sha256.Sum256([]byte(ticketID))
	classID := int32(binary.BigEndian.Uint32(sum[0:4]))
	objID := int32(binary.BigEndian.Uint32(sum[4:8]))
	return classID, objID
}
