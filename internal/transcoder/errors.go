package transcoder

import (
	"errors"
	"fmt"
)

// Reason classifies why a job failed.
type Reason string

// Failure reasons.
const (
	ReasonUnreadableMedia    Reason = "unreadable_media"
	ReasonUnsupportedCodec   Reason = "unsupported_codec"
	ReasonPlaybackFailure    Reason = "playback_failure"
	ReasonContextUnavailable Reason = "context_unavailable"
	ReasonRecorderFailure    Reason = "recorder_failure"
	ReasonTimeout            Reason = "timeout"
	ReasonCanceled           Reason = "canceled"
)

// Sentinel errors, one per reason, for use with errors.Is.
var (
	ErrUnreadableMedia    = errors.New("source media could not be read")
	ErrUnsupportedCodec   = errors.New("no WebM encoder available")
	ErrPlaybackFailure    = errors.New("source playback failed")
	ErrContextUnavailable = errors.New("capture surface unavailable")
	ErrRecorderFailure    = errors.New("recorder failed")
	ErrTimeout            = errors.New("transcode timed out")
	ErrCanceled           = errors.New("transcode canceled")
)

var reasonSentinels = map[Reason]error{
	ReasonUnreadableMedia:    ErrUnreadableMedia,
	ReasonUnsupportedCodec:   ErrUnsupportedCodec,
	ReasonPlaybackFailure:    ErrPlaybackFailure,
	ReasonContextUnavailable: ErrContextUnavailable,
	ReasonRecorderFailure:    ErrRecorderFailure,
	ReasonTimeout:            ErrTimeout,
	ReasonCanceled:           ErrCanceled,
}

// TranscodeError is the error carried by every failed or timed-out job.
type TranscodeError struct {
	Reason Reason
	Err    error
}

func newError(reason Reason, err error) *TranscodeError {
	return &TranscodeError{Reason: reason, Err: err}
}

func (e *TranscodeError) Error() string {
	sentinel := reasonSentinels[e.Reason]
	if e.Err == nil {
		if sentinel == nil {
			return string(e.Reason)
		}
		return sentinel.Error()
	}
	if sentinel == nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %v", sentinel, e.Err)
}

// Unwrap exposes both the reason sentinel and the underlying cause.
func (e *TranscodeError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := reasonSentinels[e.Reason]; sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ReasonOf extracts the failure reason from err, or "" if err is not a
// TranscodeError.
func ReasonOf(err error) Reason {
	var te *TranscodeError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}
