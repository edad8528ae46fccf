package voucher

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
)

var (
	// ErrCodeRequired is returned before any upstream call when the code is blank.
	ErrCodeRequired = errors.New("voucher code is required")
	// ErrInvalidAmount is returned for a negative order amount.
	ErrInvalidAmount = errors.New("order amount must not be negative")
	// ErrVoucherInactive is returned when the voucher's active window has not started.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrVoucherExpired is returned when the voucher has already expired.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrMinimumSpendUnmet indicates the order total did not meet the voucher requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
	// ErrNotEligible covers unknown or otherwise invalid codes.
	ErrNotEligible = errors.New("voucher not found or invalid")
	// ErrValidationFailed is the generic failure when the authority could not answer.
	ErrValidationFailed = errors.New("voucher validation failed")
)

// Application is a validated voucher bound to a cart. Amounts are exactly
// what the validation authority returned.
type Application struct {
	Code           string `json:"code"`
	OriginalAmount int64  `json:"originalAmount"`
	DiscountAmount int64  `json:"discountAmount"`
	FinalAmount    int64  `json:"finalAmount"`
	Message        string `json:"message,omitempty"`
}

// Rejection is a validation failure carrying one of the reason sentinels and
// the message shown to the customer.
type Rejection struct {
	Reason  error
	Message string
	Cause   error
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return r.Reason.Error() + ": " + r.Cause.Error()
	}
	return r.Reason.Error()
}

func (r *Rejection) Unwrap() error { return r.Reason }

// AppError renders the rejection inline for the cart screen.
func (r *Rejection) AppError() *common.AppError {
	status := http.StatusUnprocessableEntity
	if errors.Is(r.Reason, ErrValidationFailed) {
		status = http.StatusBadGateway
	}
	if errors.Is(r.Reason, ErrCodeRequired) || errors.Is(r.Reason, ErrInvalidAmount) {
		status = http.StatusBadRequest
	}
	return common.NewAppError(reasonCode(r.Reason), r.Message, status, r)
}

// Authority is the external voucher validation endpoint.
type Authority interface {
	ValidateVoucher(ctx context.Context, token, code string, amount int64) (commerce.VoucherQuote, error)
}

// Validator checks a code against an order amount.
type Validator struct {
	Authority Authority
}

// Validate returns the authority's pricing for code, or a *Rejection.
func (v *Validator) Validate(ctx context.Context, token, code string, orderAmount int64) (Application, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Application{}, reject(ErrCodeRequired, nil)
	}
	if orderAmount < 0 {
		return Application{}, reject(ErrInvalidAmount, nil)
	}
	if v == nil || v.Authority == nil {
		return Application{}, reject(ErrValidationFailed, errors.New("voucher authority not configured"))
	}
	quote, err := v.Authority.ValidateVoucher(ctx, token, code, orderAmount)
	if err != nil {
		rej := reject(classify(err), err)
		obs.Inc(obs.VoucherValidateTotal, resultLabel(rej.Reason))
		zerolog.Ctx(ctx).Info().Str("voucher", code).Str("reason", resultLabel(rej.Reason)).Msg("voucher_rejected")
		return Application{}, rej
	}
	obs.Inc(obs.VoucherValidateTotal, "ok")
	app := Application{
		Code:           code,
		OriginalAmount: int64(quote.OriginalAmount),
		DiscountAmount: int64(quote.DiscountAmount),
		FinalAmount:    int64(quote.FinalAmount),
		Message:        quote.Message,
	}
	if quote.Code != "" {
		app.Code = quote.Code
	}
	if app.OriginalAmount == 0 {
		app.OriginalAmount = orderAmount
	}
	return app, nil
}

func reject(reason, cause error) *Rejection {
	return &Rejection{Reason: reason, Message: messages[reason], Cause: cause}
}

var messages = map[error]string{
	ErrCodeRequired:      "Please enter a voucher code.",
	ErrInvalidAmount:     "The order amount is invalid.",
	ErrVoucherInactive:   "This voucher is not active yet.",
	ErrVoucherExpired:    "This voucher has expired.",
	ErrMinimumSpendUnmet: "Your order does not reach the minimum amount for this voucher.",
	ErrNotEligible:       "This voucher code does not exist or is not valid.",
	ErrValidationFailed:  "We could not check this voucher right now, please try again.",
}

// classify maps the authority's error vocabulary onto the reason sentinels.
// Checks run most-specific first: "not yet active" must not read as "invalid".
func classify(err error) error {
	var apiErr *commerce.APIError
	if !errors.As(err, &apiErr) || apiErr.Status == 0 || apiErr.Status >= http.StatusInternalServerError {
		return ErrValidationFailed
	}
	text := strings.ToLower(apiErr.Code + " " + apiErr.Message)
	switch {
	case containsAny(text, "not_active", "not active", "inactive", "not yet", "not_started", "not started", "chưa bắt đầu", "chưa có hiệu lực"):
		return ErrVoucherInactive
	case containsAny(text, "expired", "expire", "hết hạn"):
		return ErrVoucherExpired
	case containsAny(text, "minimum", "min_order", "min order", "min_spend", "tối thiểu"):
		return ErrMinimumSpendUnmet
	case apiErr.Status == http.StatusNotFound,
		containsAny(text, "not_found", "not found", "invalid", "không tồn tại", "không hợp lệ"):
		return ErrNotEligible
	case apiErr.Status >= http.StatusBadRequest:
		return ErrNotEligible
	}
	return ErrValidationFailed
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func reasonCode(reason error) string {
	switch {
	case errors.Is(reason, ErrVoucherInactive):
		return "VOUCHER_NOT_ACTIVE"
	case errors.Is(reason, ErrVoucherExpired):
		return "VOUCHER_EXPIRED"
	case errors.Is(reason, ErrMinimumSpendUnmet):
		return "VOUCHER_MIN_ORDER"
	case errors.Is(reason, ErrNotEligible):
		return "VOUCHER_INVALID"
	case errors.Is(reason, ErrCodeRequired), errors.Is(reason, ErrInvalidAmount):
		return "BAD_REQUEST"
	default:
		return "VOUCHER_UNAVAILABLE"
	}
}

func resultLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrVoucherInactive):
		return "inactive"
	case errors.Is(reason, ErrVoucherExpired):
		return "expired"
	case errors.Is(reason, ErrMinimumSpendUnmet):
		return "min_order"
	case errors.Is(reason, ErrNotEligible):
		return "invalid"
	default:
		return "error"
	}
}
