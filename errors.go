package spdkio

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrInitialization is returned when the environment is missing or
	// torn down, when it is initialized twice, or when a carrier that
	// already owns a thread attaches another one.
	ErrInitialization = errors.New("spdkio: initialization error")

	// ErrChannelAllocation is returned when an I/O channel could not be
	// allocated for a device.
	ErrChannelAllocation = errors.New("spdkio: channel allocation failed")

	// ErrDeviceNotFound is returned by channel providers when the device
	// behind a DeviceID does not exist.
	ErrDeviceNotFound = errors.New("spdkio: device not found")

	// ErrCancelled is the result of a completion whose sender was dropped,
	// or of a message whose target thread terminated first.
	ErrCancelled = errors.New("spdkio: cancelled")

	// ErrWrongCarrier is returned when a thread or channel is used from a
	// carrier other than the one that owns it.
	ErrWrongCarrier = errors.New("spdkio: used from a foreign carrier")

	// ErrTerminated is returned by operations on a terminated thread.
	ErrTerminated = errors.New("spdkio: thread terminated")

	// ErrReentrantPoll is returned when Poll is called from inside a
	// message or poller of the same thread.
	ErrReentrantPoll = errors.New("spdkio: reentrant poll")

	// ErrMessagePoolExhausted is returned by Send when the target
	// thread's mailbox is at capacity.
	ErrMessagePoolExhausted = errors.New("spdkio: message pool exhausted")

	// ErrChannelClosed is returned by a channel that was closed during
	// thread teardown.
	ErrChannelClosed = errors.New("spdkio: channel closed")

	// ErrCarrierLost is matched by join errors of carriers that
	// terminated abnormally.
	ErrCarrierLost = errors.New("spdkio: carrier lost")
)

// ForeignOperationError reports a non-zero status delivered to the
// foreign completion callback. Status follows the negative errno
// convention of the engine.
type ForeignOperationError struct {
	Status int32
}

func (e *ForeignOperationError) Error() string {
	if e.Status < 0 {
		return fmt.Sprintf("spdkio: foreign operation failed: status %d (%s)", e.Status, unix.Errno(-e.Status).Error())
	}
	return fmt.Sprintf("spdkio: foreign operation failed: status %d", e.Status)
}

// Errno returns the status as an errno value.
func (e *ForeignOperationError) Errno() unix.Errno {
	if e.Status < 0 {
		return unix.Errno(-e.Status)
	}
	return unix.Errno(e.Status)
}

// CarrierLostError is the join error of a spawned carrier whose body
// panicked.
type CarrierLostError struct {
	Thread string
	Value  any
	Stack  []byte
}

func (e *CarrierLostError) Error() string {
	return fmt.Sprintf("spdkio: carrier of thread %q lost: %v", e.Thread, e.Value)
}

func (e *CarrierLostError) Is(target error) bool {
	return target == ErrCarrierLost
}

// Unwrap returns the panic value if it is an error.
func (e *CarrierLostError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func initErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInitialization}, args...)...)
}
