package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// TransientError marks a failure worth retrying: timeouts, connection
// resets, 5xx responses, provider throttling.
type TransientError struct {
	Code string
	Err  error
}

func (e *TransientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("transient delivery failure (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure no retry can fix: invalid recipient,
// provider-reported hard bounce, oversized payload.
type PermanentError struct {
	Code string
	Err  error
}

func (e *PermanentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("permanent delivery failure (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient reports whether err should be retried. Unclassified errors
// count as transient so a retry gets a chance to resolve them.
func Transient(err error) bool {
	var perm *PermanentError
	return !errors.As(err, &perm)
}

// SES error codes that indicate the message itself is unsendable.
var permanentCodes = map[string]bool{
	"BadRequestException":       true,
	"MessageRejected":           true,
	"MailFromDomainNotVerified": true,
	"NotFoundException":         true,
	"AccountSuspendedException": true,
	"SendingPausedException":    true,
}

// Classify wraps a raw send error into the transient/permanent taxonomy.
// Transport-level failures (we never reached the provider) are always
// transient; provider rejections are permanent when the code says the
// message can never be accepted.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var transientErr *TransientError
	var permErr *PermanentError
	if errors.As(err, &transientErr) || errors.As(err, &permErr) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Code: "transport", Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if permanentCodes[code] {
			return &PermanentError{Code: code, Err: err}
		}
		// TooManyRequestsException, LimitExceededException, internal
		// failures: the provider may accept the same message later.
		return &TransientError{Code: code, Err: err}
	}

	if strings.Contains(err.Error(), "connection refused") {
		return &TransientError{Code: "transport", Err: err}
	}
	return &TransientError{Err: err}
}
