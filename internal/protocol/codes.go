package protocol

import "fmt"

// Code is a stable numeric reject code. Codes are grouped by hundreds and
// existing values must never be reassigned.
type Code uint16

const (
	// 1xx connection
	CodeNotConnected     Code = 100
	CodeInvalidSession   Code = 101
	CodeSessionExpired   Code = 102
	CodeAlreadyConnected Code = 103

	// 2xx auth
	CodeNotAuthenticated Code = 200
	CodeBanned           Code = 201

	// 3xx room
	CodeRoomNotFound  Code = 300
	CodeRoomClosed    Code = 301
	CodeRoomFull      Code = 302
	CodeAlreadyInRoom Code = 303
	CodeNotInRoom     Code = 304
	CodeBuyInTooSmall Code = 305
	CodeBuyInTooLarge Code = 306

	// 4xx seat
	CodeSeatNotFound           Code = 400
	CodeSeatTaken              Code = 401
	CodeAlreadySeated          Code = 402
	CodeNotSeated              Code = 403
	CodeCannotChangeDuringHand Code = 404

	// 5xx action
	CodeNotYourTurn        Code = 500
	CodeIllegalAction      Code = 501
	CodeInsufficientChips  Code = 502
	CodeBetTooSmall        Code = 503
	CodeBetTooLarge        Code = 504
	CodeActionTimeout      Code = 505
	CodeHandNotActive      Code = 506

	// 6xx sync
	CodeSequenceMismatch Code = 600
	CodeStaleIntent      Code = 601
	CodeDesync           Code = 602
	CodeInvalidHandID    Code = 603
	CodeInvalidTableID   Code = 604

	// 7xx financial integrity
	CodeInsufficientFunds   Code = 700
	CodeDuplicateSettlement Code = 701
	CodeAlreadySettled      Code = 702
	CodeNonIntegerAmount    Code = 703
	CodeNegativeAmount      Code = 704

	// 9xx general
	CodeInternal    Code = 900
	CodeMaintenance Code = 901
	CodeRateLimit   Code = 902
)

var codeNames = map[Code]string{
	CodeNotConnected:           "NOT_CONNECTED",
	CodeInvalidSession:         "INVALID_SESSION",
	CodeSessionExpired:         "SESSION_EXPIRED",
	CodeAlreadyConnected:       "ALREADY_CONNECTED",
	CodeNotAuthenticated:       "NOT_AUTHENTICATED",
	CodeBanned:                 "BANNED",
	CodeRoomNotFound:           "ROOM_NOT_FOUND",
	CodeRoomClosed:             "ROOM_CLOSED",
	CodeRoomFull:               "ROOM_FULL",
	CodeAlreadyInRoom:          "ALREADY_IN_ROOM",
	CodeNotInRoom:              "NOT_IN_ROOM",
	CodeBuyInTooSmall:          "BUY_IN_TOO_SMALL",
	CodeBuyInTooLarge:          "BUY_IN_TOO_LARGE",
	CodeSeatNotFound:           "SEAT_NOT_FOUND",
	CodeSeatTaken:              "SEAT_TAKEN",
	CodeAlreadySeated:          "ALREADY_SEATED",
	CodeNotSeated:              "NOT_SEATED",
	CodeCannotChangeDuringHand: "CANNOT_CHANGE_DURING_HAND",
	CodeNotYourTurn:            "NOT_YOUR_TURN",
	CodeIllegalAction:          "ILLEGAL_ACTION",
	CodeInsufficientChips:      "INSUFFICIENT_CHIPS",
	CodeBetTooSmall:            "BET_TOO_SMALL",
	CodeBetTooLarge:            "BET_TOO_LARGE",
	CodeActionTimeout:          "ACTION_TIMEOUT",
	CodeHandNotActive:          "HAND_NOT_ACTIVE",
	CodeSequenceMismatch:       "SEQUENCE_MISMATCH",
	CodeStaleIntent:            "STALE_INTENT",
	CodeDesync:                 "DESYNC",
	CodeInvalidHandID:          "INVALID_HAND_ID",
	CodeInvalidTableID:         "INVALID_TABLE_ID",
	CodeInsufficientFunds:      "INSUFFICIENT_FUNDS",
	CodeDuplicateSettlement:    "DUPLICATE_SETTLEMENT",
	CodeAlreadySettled:         "ALREADY_SETTLED",
	CodeNonIntegerAmount:       "NON_INTEGER_AMOUNT",
	CodeNegativeAmount:         "NEGATIVE_AMOUNT",
	CodeInternal:               "INTERNAL",
	CodeMaintenance:            "MAINTENANCE",
	CodeRateLimit:              "RATE_LIMIT",
}

// String returns the symbolic name for a code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", uint16(c))
}

// Reject is a typed validation failure. It is a value, not an error: the
// authority composes rejects rather than unwinding a call stack, and a
// reject never implies mutated state.
type Reject struct {
	Code    Code              `json:"code"`
	Reason  string            `json:"reason"`
	Details map[string]string `json:"details,omitempty"`
}

// NewReject creates a reject with the code's symbolic name as reason.
func NewReject(code Code) *Reject {
	return &Reject{Code: code, Reason: code.String()}
}

// NewRejectf creates a reject with a formatted reason.
func NewRejectf(code Code, format string, args ...any) *Reject {
	return &Reject{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// With attaches a detail key/value and returns the reject for chaining.
func (r *Reject) With(key, value string) *Reject {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
	return r
}

func (r *Reject) String() string {
	return fmt.Sprintf("%s (%d): %s", r.Code, uint16(r.Code), r.Reason)
}
