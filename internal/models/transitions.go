package models

// transitions is the single authority on legal fulfillment moves. Keeping the
// table in one place makes unreachable paths show up as dead rows instead of
// hiding inside individual endpoints.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusApproved, StatusCancelled, StatusRefunded},
	StatusApproved:   {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusCancelled, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in the given status may still be
// cancelled. Delivered and already-terminal orders may not.
func Cancellable(s OrderStatus) bool {
	return CanTransition(s, StatusCancelled)
}

// Refundable reports whether a refund may still be requested for an order in
// the given status.
func Refundable(s OrderStatus) bool {
	return s != StatusRefunded && s != StatusCancelled
}
