// Package tapid defines the strongly-typed identifier kinds used across the
// allocation ledger: each kind is a distinct string-backed type so a
// HoldId can never be passed where an AllocationId is expected, even though
// both are opaque strings on the wire.
package tapid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrEmpty is returned when a branded id is the empty string where one is required.
var ErrEmpty = errors.New("tapid: empty identifier")

// ActorId identifies the caller issuing a command. The core never stores
// anything about an actor beyond this opaque token (no PII retention).
type ActorId string

// ResourceId is the URN of a bookable resource: urn:tap:resource:<opaque>.
type ResourceId string

// SlotId identifies a discrete time slot, where callers model availability
// in pre-cut slots rather than continuous intervals.
type SlotId string

// HoldId identifies a Hold.
type HoldId string

// OrderId identifies a client-side order grouping one or more holds.
type OrderId string

// AllocationId identifies a committed Allocation.
type AllocationId string

// CutId identifies a cross-resource watermark minted by the Cut Manager.
type CutId string

// IdempotencyKey binds a command attempt to a single outcome.
type IdempotencyKey string

const resourcePrefix = "urn:tap:resource:"

// NewHoldId mints a fresh, time-ordered HoldId.
func NewHoldId() HoldId { return HoldId(newUID()) }

// NewAllocationId mints a fresh AllocationId.
func NewAllocationId() AllocationId { return AllocationId(newUID()) }

// NewCutId mints a fresh CutId.
func NewCutId() CutId { return CutId(newUID()) }

// newUID generates a time-ordered v7 UUID, falling back to v4 if the clock
// source backing v7 generation is unavailable.
func newUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Validate checks r is a well-formed resource URN: urn:tap:resource:<opaque>
// where opaque is 1-128 printable ASCII characters.
func (r ResourceId) Validate() error {
	s := string(r)
	if !strings.HasPrefix(s, resourcePrefix) {
		return fmt.Errorf("%w: resource id must start with %q", ErrInvalidFormat, resourcePrefix)
	}
	opaque := s[len(resourcePrefix):]
	if len(opaque) < 1 || len(opaque) > 128 {
		return fmt.Errorf("%w: opaque segment length %d out of [1,128]", ErrInvalidFormat, len(opaque))
	}
	for _, r := range opaque {
		if r < 0x20 || r > 0x7e {
			return fmt.Errorf("%w: opaque segment must be printable ASCII", ErrInvalidFormat)
		}
	}
	return nil
}

// ErrInvalidFormat is returned by Validate when a resource URN is malformed.
var ErrInvalidFormat = errors.New("tapid: invalid resource identifier format")

// String implementations let these types satisfy fmt.Stringer for logging.
func (a ActorId) String() string       { return string(a) }
func (r ResourceId) String() string    { return string(r) }
func (s SlotId) String() string        { return string(s) }
func (h HoldId) String() string        { return string(h) }
func (o OrderId) String() string       { return string(o) }
func (a AllocationId) String() string  { return string(a) }
func (c CutId) String() string         { return string(c) }
func (k IdempotencyKey) String() string { return string(k) }
