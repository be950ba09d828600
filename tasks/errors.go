package tasks

import "fmt"

// ConfigurationError is returned by stage factories when parameters are
// malformed or missing.  Nothing is enumerated when it is returned.
type ConfigurationError struct {
	Stage  Stage
	Param  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("stage %s: bad %q: %s", e.Stage, e.Param, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RangeError is returned when a slice request falls outside an iterator's range.
type RangeError struct {
	Stage  Stage
	Offset int
	Count  int
	Len    int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("stage %s: slice [%d,%d) outside iterator of length %d",
		e.Stage, e.Offset, e.Offset+e.Count, e.Len)
}

func configErr(stage Stage, param, format string, args ...interface{}) error {
	return &ConfigurationError{Stage: stage, Param: param, Reason: fmt.Sprintf(format, args...)}
}
