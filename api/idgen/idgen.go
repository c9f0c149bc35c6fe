package idgen

import "github.com/google/uuid"

type Allocator interface {
	Allocate() string
}

// UUIDAllocator mints random (version 4) UUIDs. It needs no coordination
// between callers.
type UUIDAllocator struct{}

func NewUUIDAllocator() *UUIDAllocator {
	return &UUIDAllocator{}
}

func (UUIDAllocator) Allocate() string {
	return uuid.NewString()
}
