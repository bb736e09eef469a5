package types

import (
	"errors"
	"fmt"
)

type PaymentType string

const (
	PaymentTypeRegistration PaymentType = "registration"
	PaymentTypeRenewal      PaymentType = "renewal"
	PaymentTypeEvent        PaymentType = "event"
	PaymentTypeMerchandise  PaymentType = "merchandise"
)

var PaymentTypes = []PaymentType{
	PaymentTypeRegistration,
	PaymentTypeRenewal,
	PaymentTypeEvent,
	PaymentTypeMerchandise,
}

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeRegistration, PaymentTypeRenewal, PaymentTypeEvent, PaymentTypeMerchandise:
		return true
	}
	return false
}

// AccountReference and Description are shown on the payer's handset.
// The provider caps them at 12 and 13 characters.
func (t PaymentType) AccountReference() string {
	switch t {
	case PaymentTypeRegistration:
		return "REGISTRATION"
	case PaymentTypeRenewal:
		return "RENEWAL"
	case PaymentTypeEvent:
		return "EVENT"
	case PaymentTypeMerchandise:
		return "MERCHANDISE"
	}
	return "ALUMNI"
}

func (t PaymentType) Description() string {
	switch t {
	case PaymentTypeRegistration:
		return "Registration"
	case PaymentTypeRenewal:
		return "Renewal"
	case PaymentTypeEvent:
		return "Event ticket"
	case PaymentTypeMerchandise:
		return "Merchandise"
	}
	return "Payment"
}

// ErrIllegalTransition is returned by every status machine in this package.
var ErrIllegalTransition = errors.New("illegal status transition")

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusConfirmed  PaymentStatus = "confirmed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// A failed payment may still be confirmed: the provider's success report wins
// over an earlier timeout or query result. Confirmed is terminal.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusConfirmed, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusConfirmed, PaymentStatusFailed},
	PaymentStatusFailed:     {PaymentStatusConfirmed},
	PaymentStatusConfirmed:  {},
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return contains(paymentTransitions[s], next)
}

// Transition returns next when the move is legal.
func (s PaymentStatus) Transition(next PaymentStatus) (PaymentStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

// PaymentStatusSources lists every status that may move to target. Storage
// uses it to build conditional updates.
func PaymentStatusSources(target PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for from, tos := range paymentTransitions {
		if contains(tos, target) {
			out = append(out, from)
		}
	}
	sortStatuses(out)
	return out
}

// Open reports whether the provider may still change the outcome.
func (s PaymentStatus) Open() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

type ProvisioningStatus string

const (
	ProvisioningStatusNone       ProvisioningStatus = ""
	ProvisioningStatusInProgress ProvisioningStatus = "in_progress"
	ProvisioningStatusDone       ProvisioningStatus = "done"
	ProvisioningStatusFailed     ProvisioningStatus = "failed"
	ProvisioningStatusSkipped    ProvisioningStatus = "skipped"
)

// Claimable statuses may be picked up by a provisioning run.
var ClaimableProvisioningStatuses = []ProvisioningStatus{ProvisioningStatusNone, ProvisioningStatusFailed}
