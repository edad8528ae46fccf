package order

import "strings"

// Status is the lifecycle state of an order as presented by the storefront.
type Status string

const (
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusConfirmed       Status = "CONFIRMED"
	StatusProcessing      Status = "PROCESSING"
	StatusShipping        Status = "SHIPPING"
	StatusDelivered       Status = "DELIVERED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// ParseStatus maps the commerce API's status vocabulary onto Status. Unknown
// labels are kept upper-cased so they still render.
func ParseStatus(raw string) Status {
	label := strings.ToUpper(strings.TrimSpace(raw))
	label = strings.NewReplacer("-", "_", " ", "_").Replace(label)
	switch label {
	case "AWAITING_PAYMENT", "PENDING_PAYMENT", "PENDING", "UNPAID", "WAITING_PAYMENT":
		return StatusAwaitingPayment
	case "PAID", "SETTLED":
		return StatusPaid
	case "CONFIRMED", "ACCEPTED":
		return StatusConfirmed
	case "PROCESSING", "PREPARING", "PACKING":
		return StatusProcessing
	case "SHIPPING", "SHIPPED", "IN_TRANSIT", "DELIVERING":
		return StatusShipping
	case "DELIVERED":
		return StatusDelivered
	case "COMPLETED", "DONE", "FINISHED":
		return StatusCompleted
	case "CANCELLED", "CANCELED", "FAILED", "EXPIRED":
		return StatusCancelled
	}
	return Status(label)
}

// Normalize folds an unpaid order into the cancelled state. Applying it to an
// already-normalized status returns the status unchanged.
func Normalize(s Status) Status {
	if s == StatusAwaitingPayment {
		return StatusCancelled
	}
	return s
}

// NormalizeRaw parses and normalizes a status read from the commerce API.
func NormalizeRaw(raw string) Status {
	return Normalize(ParseStatus(raw))
}

// View is the order-history tab an order is listed under.
type View string

const (
	ViewAll        View = "all"
	ViewConfirming View = "confirming"
	ViewProcessing View = "processing"
	ViewShipping   View = "shipping"
	ViewCompleted  View = "completed"
	ViewCancelled  View = "cancelled"
)

var viewStatuses = map[View][]Status{
	ViewConfirming: {StatusPaid, StatusConfirmed},
	ViewProcessing: {StatusProcessing},
	ViewShipping:   {StatusShipping},
	ViewCompleted:  {StatusDelivered, StatusCompleted},
	// upstream still stores unpaid orders separately, so the tab asks for both
	ViewCancelled: {StatusCancelled, StatusAwaitingPayment},
}

// ViewOf routes a status to its tab. The status is normalized first.
func ViewOf(s Status) View {
	switch Normalize(s) {
	case StatusPaid, StatusConfirmed:
		return ViewConfirming
	case StatusProcessing:
		return ViewProcessing
	case StatusShipping:
		return ViewShipping
	case StatusDelivered, StatusCompleted:
		return ViewCompleted
	case StatusCancelled:
		return ViewCancelled
	}
	return ViewAll
}

// ParseView returns the view named by raw, falling back to ViewAll.
func ParseView(raw string) View {
	v := View(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := viewStatuses[v]; ok {
		return v
	}
	return ViewAll
}

// UpstreamStatuses lists the raw statuses to request from the commerce API for
// a view. ViewAll returns nil (no filter).
func (v View) UpstreamStatuses() []Status {
	return append([]Status(nil), viewStatuses[v]...)
}
