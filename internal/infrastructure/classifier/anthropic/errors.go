package anthropic

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/formvault/formvault/internal/core/domain"
)

// mapError flattens SDK and transport failures onto the classifier
// error taxonomy the pipeline retries and falls back on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewClassifierError(domain.ClassifierErrTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return domain.NewClassifierError(domain.ClassifierErrRateLimit, err.Error())
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.NewClassifierError(domain.ClassifierErrAuth, err.Error())
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return domain.NewClassifierError(domain.ClassifierErrTimeout, err.Error())
		case http.StatusBadRequest:
			return domain.NewClassifierError(domain.ClassifierErrContentFilter, err.Error())
		default:
			if apiErr.StatusCode >= 500 {
				return domain.NewClassifierError(domain.ClassifierErrNetwork, err.Error())
			}
			return domain.NewClassifierError(domain.ClassifierErrUnknown, err.Error())
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewClassifierError(domain.ClassifierErrTimeout, err.Error())
		}
		return domain.NewClassifierError(domain.ClassifierErrNetwork, err.Error())
	}

	return domain.NewClassifierError(domain.ClassifierErrUnknown, err.Error())
}
