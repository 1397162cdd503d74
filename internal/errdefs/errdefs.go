// Package errdefs defines the error taxonomy for allssh.
package errdefs

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed group configuration resource. It is
// fatal and aborts the run before any process is spawned.
type ConfigError struct {
	File string
	Line int
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("config error: %s", e.Msg)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// MalformedRange reports a host-spec token whose range expression cannot
// be expanded.
type MalformedRange struct {
	Token string
	Msg   string
}

func (e *MalformedRange) Error() string {
	return fmt.Sprintf("malformed range '%s': %s", e.Token, e.Msg)
}

// InvalidSubset reports a group subset selector that is neither ALL nor UP.
type InvalidSubset struct {
	Group  string
	Subset string
}

func (e *InvalidSubset) Error() string {
	return fmt.Sprintf("invalid subset '%s' for group '%s': must be ALL or UP", e.Subset, e.Group)
}

// EmptyResolution reports a host spec that resolved to no hosts at all.
type EmptyResolution struct {
	Spec string
}

func (e *EmptyResolution) Error() string {
	return fmt.Sprintf("host spec '%s' resolved to no hosts", e.Spec)
}

// FenceExceeded reports a liveness probe request over more hosts than the
// hard concurrency fence allows. This guards against fork bombs and is
// not retryable.
type FenceExceeded struct {
	Requested int
	Limit     int
}

func (e *FenceExceeded) Error() string {
	return fmt.Sprintf("refusing to probe %d hosts (limit %d)", e.Requested, e.Limit)
}

// SpawnFailure reports a failure to create a remote-command process.
// Partial fan-out is not a supported state, so this aborts the whole run.
type SpawnFailure struct {
	Host string
	Err  error
}

func (e *SpawnFailure) Error() string {
	return fmt.Sprintf("failed to spawn remote command for %s: %v", e.Host, e.Err)
}

func (e *SpawnFailure) Unwrap() error {
	return e.Err
}

// IsUsage reports whether err is a configuration or host-spec error that
// should map to the usage exit code, as opposed to a run-time failure.
func IsUsage(err error) bool {
	var (
		ce *ConfigError
		mr *MalformedRange
		is *InvalidSubset
		er *EmptyResolution
		fe *FenceExceeded
	)
	return errors.As(err, &ce) ||
		errors.As(err, &mr) ||
		errors.As(err, &is) ||
		errors.As(err, &er) ||
		errors.As(err, &fe)
}
