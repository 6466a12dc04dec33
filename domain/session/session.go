// Package session provides the metered browsing session model and the
// pure admission rules for the quota guard. No I/O here.
package session

import "time"

// Status is the lifecycle state of a proxy session. Transitions are
// one-directional: active moves to exactly one terminal state and
// never re-enters active.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
	StatusError      Status = "error"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusTerminated || s == StatusError
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	return s == StatusActive && next.Terminal()
}

// Session represents one metered browsing session (value type).
// Created by an external issuance service; this core only reads it,
// increments its counters, and expires it on quota exhaustion.
type Session struct {
	ID               string
	UserID           string
	TargetDomain     string
	Status           Status
	StartedAt        time.Time
	EndedAt          *time.Time
	BytesTransferred int64 // monotonic
	RequestsCount    int64 // monotonic
	LastActivityAt   time.Time
	ErrorMessage     string
	Metadata         map[string]string
}

// SubscriptionStatus is the billing standing of the owning user.
type SubscriptionStatus string

const (
	SubscriptionFree      SubscriptionStatus = "free"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// Quota is a view of a user's remaining entitlement (value type).
type Quota struct {
	UserID         string
	BalanceMinutes int64
	Subscription   SubscriptionStatus
}

// ExpireReasonBalance is the error message recorded when a session is
// expired because the owner ran out of time balance.
const ExpireReasonBalance = "Insufficient time balance"

// AdmitResult is the outcome of the quota admission check (value type).
type AdmitResult struct {
	Allowed bool
	// Expire is set when the session must transition to expired as a
	// side decision of the check (balance exhausted, no subscription).
	Expire bool
	Reason string
}

// Admit decides whether a request on an active session may proceed.
// A session proceeds if the owner has balance remaining OR an active
// subscription. This is a PURE function; the caller performs the
// expire transition it requests.
func Admit(q Quota) AdmitResult {
	if q.BalanceMinutes > 0 || q.Subscription == SubscriptionActive {
		return AdmitResult{Allowed: true}
	}
	return AdmitResult{
		Allowed: false,
		Expire:  true,
		Reason:  ExpireReasonBalance,
	}
}

// MeterIncrement is one request's contribution to session counters
// (value type). Increments are only valid while the session is active.
type MeterIncrement struct {
	Bytes     int64
	LatencyMs int64
	At        time.Time
}
