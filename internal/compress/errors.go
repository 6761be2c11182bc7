package compress

import (
	errs "errors"
	"fmt"
)

// ErrNoTarget is returned by SkipTo when the offset list holds no offset
// beyond the current compressed position.
var ErrNoTarget = errs.New("no jump target beyond current position")

// DecodeError reports corruption detected by a codec. The reader itself never
// retries; recovery (Skip / SkipTo) is the caller's policy.
type DecodeError struct {
	Codec string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode error: %s", e.Codec, e.Err.Error())
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
