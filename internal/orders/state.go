package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// State is the (status, payment_status) pair of an order.
type State struct {
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
}

var (
	StatePendingOnline = State{enums.OrderStatusPending, enums.PaymentStatusPending}
	StatePendingCOD    = State{enums.OrderStatusPending, enums.PaymentStatusPendingCOD}
	StateConfirmedCOD  = State{enums.OrderStatusConfirmed, enums.PaymentStatusPendingCOD}
	StatePaid          = State{enums.OrderStatusConfirmed, enums.PaymentStatusPaid}
	StateCancelled     = State{enums.OrderStatusCancelled, enums.PaymentStatusFailed}
)

// Cancellation reasons written on orders.
const (
	ReasonPaymentInitiationFailed = "payment_initiation_failed"
	ReasonPaymentAbandoned        = "payment_abandoned"
)

// transitions only move forward; cancelled and paid orders are final.
var transitions = map[State][]State{
	StatePendingOnline: {StatePaid, StateCancelled},
	StatePendingCOD:    {StateConfirmedCOD, StateCancelled},
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func StateOf(order *models.Order) State {
	return State{Status: order.Status, PaymentStatus: order.PaymentStatus}
}

func (s State) String() string {
	return string(s.Status) + "/" + string(s.PaymentStatus)
}
