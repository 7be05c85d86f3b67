package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
)

type fakeNetError struct{ msg string }

func (e *fakeNetError) Error() string   { return e.msg }
func (e *fakeNetError) Timeout() bool   { return true }
func (e *fakeNetError) Temporary() bool { return true }

func TestClassifyNetworkErrorsAsTransient(t *testing.T) {
	t.Parallel()

	cases := []error{
		&fakeNetError{msg: "i/o timeout"},
		context.DeadlineExceeded,
		fmt.Errorf("dial tcp: %w", context.DeadlineExceeded),
		errors.New("dial tcp 1.2.3.4:443: connect: connection refused"),
	}
	for _, err := range cases {
		classified := Classify(err)
		if !Transient(classified) {
			t.Fatalf("expected %v to classify transient", err)
		}
	}
}

func TestClassifyProviderRejectionsAsPermanent(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"MessageRejected", "BadRequestException", "AccountSuspendedException"} {
		err := Classify(&smithy.GenericAPIError{Code: code, Message: "no"})
		if Transient(err) {
			t.Fatalf("expected %s to classify permanent", code)
		}
		var perm *PermanentError
		if !errors.As(err, &perm) || perm.Code != code {
			t.Fatalf("expected PermanentError with code %s, got %v", code, err)
		}
	}
}

func TestClassifyThrottlingAsTransient(t *testing.T) {
	t.Parallel()

	err := Classify(&smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "slow down"})
	if !Transient(err) {
		t.Fatal("throttling must classify transient")
	}
}

func TestClassifyUnknownErrorsAsTransient(t *testing.T) {
	t.Parallel()

	if !Transient(Classify(errors.New("something odd"))) {
		t.Fatal("unclassified errors default to transient")
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	t.Parallel()

	perm := &PermanentError{Code: "MessageRejected", Err: errors.New("no")}
	if got := Classify(perm); got != error(perm) {
		t.Fatalf("already classified error re-wrapped: %v", got)
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()

	if Classify(nil) != nil {
		t.Fatal("nil must classify to nil")
	}
}
