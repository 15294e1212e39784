package records

import (
	"errors"

	"telephone-billing/internal/apperr"
	"telephone-billing/internal/calls"
)

var (
	ErrInvalidType            = errors.New("records: invalid record type")
	ErrUnknownCall            = errors.New("records: unknown call")
	ErrMissingStart           = errors.New("records: end without start")
	ErrCallAlreadyEnded       = errors.New("records: call already ended")
	ErrNonIncreasingTimestamp = errors.New("records: end not after start")
	ErrDuplicateTimestamp     = errors.New("records: duplicate timestamp")
	ErrAlreadyInCall          = errors.New("records: number already in call")
	ErrOverlappingInterval    = errors.New("records: overlapping interval")
	ErrEndOverlapsPriorEnd    = errors.New("records: end overlaps prior end")
)

func unknownCallError() error {
	return apperr.New(ErrUnknownCall, "call_id", "There is no call with this call_id.")
}

func missingStartError() error {
	return apperr.New(ErrMissingStart, "", "There is no start record for this call")
}

func callAlreadyEndedError() error {
	return apperr.New(ErrCallAlreadyEnded, "", "The fields call, type must make a unique set.")
}

func nonIncreasingTimestampError() error {
	return apperr.New(ErrNonIncreasingTimestamp, "", "Timestamp of end record cannot be less or equal to start record")
}

func duplicateTimestampError(typ calls.RecordType, role calls.Role) error {
	article := "a "
	if typ == calls.RecordTypeEnd {
		article = "an "
	}
	return apperr.New(ErrDuplicateTimestamp, "",
		"There is already "+article+string(typ)+" record for this "+string(role)+" and timestamp")
}

func alreadyInCallError(role calls.Role) error {
	if role == calls.RoleSource {
		return apperr.New(ErrAlreadyInCall, "", "There is already an ongoing call from this source")
	}
	return apperr.New(ErrAlreadyInCall, "", "There is already an ongoing call for this "+string(role))
}

func overlappingIntervalError(role calls.Role) error {
	return apperr.New(ErrOverlappingInterval, "", "There is already a call record for this "+string(role)+" in this interval.")
}

func endOverlapsPriorEndError(role calls.Role) error {
	return apperr.New(ErrEndOverlapsPriorEnd, "", "Cannot end this call overlapping another call record with the same "+string(role))
}

// ConflictError maps a store-level uniqueness violation that slipped past
// validation (a concurrent writer won) to the error the checks would have
// produced. Stores call it so callers always see a validation failure.
func ConflictError(constraint string) error {
	return RecordConflictError(constraint, calls.RecordTypeStart)
}

// RecordConflictError is ConflictError for a failed insert of a record of type typ.
func RecordConflictError(constraint string, typ calls.RecordType) error {
	switch constraint {
	case ConstraintCallID:
		return calls.DuplicateIDError()
	case ConstraintCallType:
		return callAlreadyEndedError()
	case ConstraintSourceTimestamp:
		return duplicateTimestampError(typ, calls.RoleSource)
	case ConstraintDestinationTimestamp:
		return duplicateTimestampError(typ, calls.RoleDestination)
	default:
		return nil
	}
}

// Uniqueness constraints enforced by durable stores.
const (
	ConstraintCallID               = "calls_pkey"
	ConstraintCallType             = "records_call_id_type_key"
	ConstraintSourceTimestamp      = "records_source_timestamp_key"
	ConstraintDestinationTimestamp = "records_destination_timestamp_key"
)
