package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/imamik/hubspoke/internal/spoke"
)

// Error codes Azure uses while a NIC is still held by a VM that is being
// or was just deleted.
var reservedCodes = []string{
	"NicReservedForAnotherVm",
	"InUseNetworkInterfaceCannotBeDeleted",
	"NicInUse",
}

var quotaCodes = []string{
	"QuotaExceeded",
	"OperationNotAllowed",
	"SkuNotAvailable",
}

// responseError extracts the ARM error from err.
func responseError(err error) (*azcore.ResponseError, bool) {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr, true
	}
	return nil, false
}

func hasErrorCode(err error, codes ...string) bool {
	respErr, ok := responseError(err)
	if !ok {
		return false
	}
	for _, code := range codes {
		if strings.EqualFold(respErr.ErrorCode, code) {
			return true
		}
	}
	return false
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	respErr, ok := responseError(err)
	return ok && respErr.StatusCode == http.StatusNotFound
}

// IsReserved checks if an error indicates a NIC is still reserved.
func IsReserved(err error) bool {
	return hasErrorCode(err, reservedCodes...)
}

// IsQuotaExceeded checks if an error indicates a subscription quota or
// capacity limit. OperationNotAllowed is only a quota error when the
// message says so; Azure also uses it for policy denials.
func IsQuotaExceeded(err error) bool {
	respErr, ok := responseError(err)
	if !ok {
		return false
	}
	switch {
	case strings.EqualFold(respErr.ErrorCode, "OperationNotAllowed"):
		return strings.Contains(strings.ToLower(respErr.Error()), "quota")
	default:
		return hasErrorCode(err, quotaCodes...)
	}
}

// classify wraps err with the matching spoke error kind. op names the
// failed call for the message.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsNotFound(err):
		return fmt.Errorf("%s: %w: %w", op, spoke.ErrNotFound, err)
	case IsReserved(err):
		return fmt.Errorf("%s: %w: %w", op, spoke.ErrReserved, err)
	case IsQuotaExceeded(err):
		return fmt.Errorf("%s: %w: %w", op, spoke.ErrQuotaExceeded, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// classifyWait is classify for a call bounded by timeout: an expired
// deadline on ctx becomes a spoke.TimeoutError.
func classifyWait(ctx context.Context, op string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", &spoke.TimeoutError{Operation: op, Timeout: timeout}, err)
	}
	return classify(op, err)
}
