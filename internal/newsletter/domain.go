package newsletter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaxEmailLength bounds the stored address.
const MaxEmailLength = 255

// Subscriber is one email's newsletter opt-in state.
type Subscriber struct {
	ID           int64
	Email        string
	IsActive     bool
	SubscribedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stats summarises the subscriber table.
type Stats struct {
	Active   int64
	Inactive int64
}

// Total returns the number of stored subscribers.
func (s Stats) Total() int64 {
	return s.Active + s.Inactive
}

// Result tells which branch a subscription attempt took.
type Result int

const (
	// ResultCreated means a new subscriber record was inserted.
	ResultCreated Result = iota + 1
	// ResultReactivated means an inactive record was switched back on.
	ResultReactivated
	// ResultAlreadyActive means nothing was written.
	ResultAlreadyActive
)

func (r Result) String() string {
	switch r {
	case ResultCreated:
		return "created"
	case ResultReactivated:
		return "reactivated"
	case ResultAlreadyActive:
		return "already_active"
	default:
		return "unknown"
	}
}

// Repository sentinels.
var (
	ErrNotFound       = errors.New("newsletter: subscriber not found")
	ErrDuplicateEmail = errors.New("newsletter: email already stored")
)

// ValidationError carries field-level messages for rejected input.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "newsletter: validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "newsletter: validation failed: " + strings.Join(parts, ", ")
}

// First returns the first message recorded for field.
func (e *ValidationError) First(field string) string {
	if e == nil {
		return ""
	}
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// PersistenceError wraps any failure of the subscriber store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("newsletter: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
