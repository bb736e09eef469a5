package types

import (
	"fmt"
	"slices"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return contains(orderTransitions[s], next)
}

func (s OrderStatus) Transition(next OrderStatus) (OrderStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: order %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

func OrderStatusSources(target OrderStatus) []OrderStatus {
	var out []OrderStatus
	for from, tos := range orderTransitions {
		if contains(tos, target) {
			out = append(out, from)
		}
	}
	sortStatuses(out)
	return out
}

type ProfileStatus string

const (
	ProfileStatusPending  ProfileStatus = "pending"
	ProfileStatusActive   ProfileStatus = "active"
	ProfileStatusExpired  ProfileStatus = "expired"
	ProfileStatusInactive ProfileStatus = "inactive"
)

var profileTransitions = map[ProfileStatus][]ProfileStatus{
	ProfileStatusPending:  {ProfileStatusActive, ProfileStatusInactive},
	ProfileStatusActive:   {ProfileStatusExpired, ProfileStatusInactive},
	ProfileStatusExpired:  {ProfileStatusActive, ProfileStatusInactive},
	ProfileStatusInactive: {ProfileStatusActive},
}

func (s ProfileStatus) Valid() bool {
	_, ok := profileTransitions[s]
	return ok
}

// CanTransitionTo treats staying in the same status as legal so that
// reactivating an active member is a no-op rather than an error.
func (s ProfileStatus) CanTransitionTo(next ProfileStatus) bool {
	return s == next || contains(profileTransitions[s], next)
}

func (s ProfileStatus) Transition(next ProfileStatus) (ProfileStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: profile %s -> %s", ErrIllegalTransition, s, next)
	}
	return next, nil
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool { return r == RoleMember || r == RoleAdmin }

type ProfileSource string

const (
	ProfileSourceOnline ProfileSource = "online"
	ProfileSourceImport ProfileSource = "import"
	ProfileSourceAdmin  ProfileSource = "admin"
)

type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusInactive MembershipStatus = "inactive"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	return s == EventStatusDraft || s == EventStatusPublished || s == EventStatusCancelled
}

func contains[T comparable](list []T, v T) bool {
	return slices.Contains(list, v)
}

func sortStatuses[T ~string](list []T) {
	slices.Sort(list)
}
