// Package replication applies document mutations to the relational sink,
// evolving table schemas as new attributes appear.
package replication

import (
	"errors"
	"fmt"

	"github.com/guidewire-oss/nosql2sql/internal/mapping"
)

var (
	ErrUnsupportedMutationKind = errors.New("unsupported mutation kind")
	ErrMissingDiscriminator    = errors.New("document has no string discriminator value")
	ErrMissingKey              = errors.New("document has no value for key attribute")
	ErrQueueClosed             = errors.New("change queue is closed")
)

// MutationKind is the change applied to the destination row.
type MutationKind int

const (
	Insert MutationKind = iota + 1
	Update
	Delete
)

func (k MutationKind) String() string {
	switch k {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

func (k MutationKind) valid() bool {
	return k >= Insert && k <= Delete
}

// ParseEventName maps a source event type to its mutation kind.
func ParseEventName(eventName string) (MutationKind, error) {
	switch eventName {
	case "INSERT":
		return Insert, nil
	case "MODIFY":
		return Update, nil
	case "REMOVE":
		return Delete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMutationKind, eventName)
	}
}

// Mutation is one change event carrying the document image to apply.
type Mutation struct {
	Document mapping.Document
	Kind     MutationKind
}
