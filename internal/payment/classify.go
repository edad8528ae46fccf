package payment

import (
	"net/url"
	"strings"
)

// Route identifies which return path the provider redirected to.
type Route int

const (
	// RouteNone is the generic return path; the parameters decide the outcome.
	RouteNone Route = iota
	// RouteSuccess is the success-designated return path.
	RouteSuccess
	// RouteCancel is the cancel-designated return path.
	RouteCancel
)

func (r Route) String() string {
	switch r {
	case RouteSuccess:
		return "success"
	case RouteCancel:
		return "cancel"
	default:
		return "return"
	}
}

// Outcome is the classified result of a payment return.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeFailed       Outcome = "failed"
	OutcomeUnresolvable Outcome = "unresolvable_order"
)

// Decision pairs an outcome with the order it applies to. OrderID is empty
// only when Outcome is OutcomeUnresolvable.
type Decision struct {
	Outcome Outcome
	OrderID string
}

var (
	orderIDKeys = []string{"orderId", "order_id", "orderCode", "vnp_TxnRef", "txnRef", "id"}
	statusKeys  = []string{"status", "resultCode", "vnp_ResponseCode", "code", "responseCode", "transaction_status"}
	cancelKeys  = []string{"cancel", "cancelled", "canceled"}

	successCodes = map[string]struct{}{
		"00": {}, "0": {}, "success": {}, "paid": {}, "settlement": {}, "capture": {}, "completed": {},
	}
	cancelCodes = map[string]struct{}{
		"24": {}, "cancel": {}, "cancelled": {}, "canceled": {}, "user_cancel": {},
	}
)

// Classify decides the outcome of a payment return. The order id is resolved
// first; without one no classification is made. Route identity wins over any
// parameter, then an explicit cancel signal, then an explicit success signal.
// Anything else is a failure.
func Classify(route Route, params url.Values) Decision {
	orderID := first(params, orderIDKeys)
	if orderID == "" {
		return Decision{Outcome: OutcomeUnresolvable}
	}
	d := Decision{OrderID: orderID}
	switch {
	case route == RouteSuccess:
		d.Outcome = OutcomeSuccess
	case route == RouteCancel:
		d.Outcome = OutcomeCancelled
	case cancelSignalled(params):
		d.Outcome = OutcomeCancelled
	case successSignalled(params):
		d.Outcome = OutcomeSuccess
	default:
		d.Outcome = OutcomeFailed
	}
	return d
}

func cancelSignalled(params url.Values) bool {
	for _, k := range cancelKeys {
		switch strings.ToLower(strings.TrimSpace(params.Get(k))) {
		case "true", "1", "yes":
			return true
		}
	}
	_, ok := cancelCodes[strings.ToLower(first(params, statusKeys))]
	return ok
}

func successSignalled(params url.Values) bool {
	_, ok := successCodes[strings.ToLower(first(params, statusKeys))]
	return ok
}

func first(params url.Values, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(params.Get(k)); v != "" {
			return v
		}
	}
	return ""
}
