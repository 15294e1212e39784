package calls

import (
	"strconv"
	"time"
)

// Call is a source -> destination connection identified by the id the
// telecom system assigned to it.
//
// Invariants: ID > 0, Source != Destination, both numbers follow the numbering plan.
// A Call is immutable once created.
type Call struct {
	ID          int64  `json:"call_id" db:"id"`
	Source      string `json:"source" db:"source"`
	Destination string `json:"destination" db:"destination"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (c Call) String() string { return strconv.FormatInt(c.ID, 10) }

// Numbers returns the phone numbers touched by the call.
func (c Call) Numbers() []string { return []string{c.Source, c.Destination} }

// Record is a start or end event of a call.
//
// Source and Destination are copied from the call so records can be
// looked up by (number, role, timestamp) without a join.
// Records are never updated; at most one of each type exists per call.
type Record struct {
	CallID    int64      `json:"call_id" db:"call_id"`
	Type      RecordType `json:"type" db:"type"`
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`

	Source      string `json:"source" db:"source"`
	Destination string `json:"destination" db:"destination"`
}

func (r Record) String() string {
	return strconv.FormatInt(r.CallID, 10) + ", " + string(r.Type) + ", " + r.Timestamp.Format(time.RFC3339Nano)
}

// Number returns the record's phone number in the given role.
func (r Record) Number(role Role) string {
	if role == RoleDestination {
		return r.Destination
	}
	return r.Source
}

type RecordType string

const (
	RecordTypeStart RecordType = "start"
	RecordTypeEnd   RecordType = "end"
)

func (t RecordType) Valid() bool {
	return t == RecordTypeStart || t == RecordTypeEnd
}

// Role is the side of a call a number plays. A number is tracked
// independently per role.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// Roles lists roles in the order validation visits them.
var Roles = []Role{RoleSource, RoleDestination}
