package order

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusAwaitingPayment, StatusPaid, StatusConfirmed, StatusProcessing,
	StatusShipping, StatusDelivered, StatusCompleted, StatusCancelled,
}

func TestNormalizeFoldsAwaitingPaymentIntoCancelled(t *testing.T) {
	require.Equal(t, StatusCancelled, Normalize(StatusAwaitingPayment))
	for _, s := range allStatuses {
		if s == StatusAwaitingPayment {
			continue
		}
		require.Equal(t, s, Normalize(s))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, s := range append(allStatuses, Status("ON_HOLD")) {
		once := Normalize(s)
		require.Equal(t, once, Normalize(once), "status %s", s)
		require.NotEqual(t, StatusAwaitingPayment, once)
	}
}

func TestNormalizeRaw(t *testing.T) {
	cases := map[string]Status{
		"awaiting_payment": StatusCancelled,
		"pending-payment":  StatusCancelled,
		"Unpaid":           StatusCancelled,
		"paid":             StatusPaid,
		"in transit":       StatusShipping,
		"canceled":         StatusCancelled,
		"completed":        StatusCompleted,
		"on_hold":          Status("ON_HOLD"),
	}
	for raw, want := range cases {
		require.Equal(t, want, NormalizeRaw(raw), raw)
	}
}

func TestViewRouting(t *testing.T) {
	require.Equal(t, ViewCancelled, ViewOf(StatusAwaitingPayment))
	require.Equal(t, ViewOf(StatusCancelled), ViewOf(StatusAwaitingPayment))
	require.Equal(t, ViewConfirming, ViewOf(StatusPaid))
	require.Equal(t, ViewCompleted, ViewOf(StatusDelivered))
	require.Equal(t, ViewAll, ViewOf(Status("ON_HOLD")))

	require.ElementsMatch(t, []Status{StatusCancelled, StatusAwaitingPayment}, ViewCancelled.UpstreamStatuses())
	require.Nil(t, ViewAll.UpstreamStatuses())
	require.Equal(t, ViewShipping, ParseView(" Shipping "))
	require.Equal(t, ViewAll, ParseView("to-pay"))
}
