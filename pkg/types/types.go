package types

import (
	"encoding/binary"
	"fmt"
)

// ResourceID identifies a resource a transaction reads or writes. The runtime
// treats it as opaque: it only needs a stable byte encoding. IDs with equal
// encodings refer to the same resource.
type ResourceID interface {
	Bytes() []byte
	String() string
}

// AccessType declares how a transaction touches a resource.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
)

func (t AccessType) String() string {
	switch t {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return fmt.Sprintf("access(%d)", int(t))
	}
}

// AccessMetadata describes one declared access of a transaction.
type AccessMetadata struct {
	Resource ResourceID
	Type     AccessType
}

// Read builds read-access metadata for a resource.
func Read(id ResourceID) AccessMetadata {
	return AccessMetadata{Resource: id, Type: AccessRead}
}

// Write builds write-access metadata for a resource.
func Write(id ResourceID) AccessMetadata {
	return AccessMetadata{Resource: id, Type: AccessWrite}
}

// Transaction is the host-supplied unit of work. The runtime never interprets
// the transaction itself; it only consumes the declared access list, in order.
type Transaction interface {
	AccessedResources() []AccessMetadata
}

// Effects is the opaque result a VM produces for a successfully executed
// transaction. The runtime stores it per transaction and hands it to the
// notarizer; it never inspects it.
type Effects any

// Uint64ID is a ready-made ResourceID for hosts that key resources by
// integers. The encoding is big-endian, so byte order matches numeric order.
type Uint64ID uint64

func (id Uint64ID) Bytes() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

func (id Uint64ID) String() string {
	return fmt.Sprintf("resource-%d", uint64(id))
}
