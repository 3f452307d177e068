// Package peripheral implements the per-peripheral connection state
// machine and GATT operation serializer: the runtime that sits between
// the OS BLE adapter (internal/osble) and the declarative binding layer
// (central).
package peripheral

import (
	"errors"
	"fmt"

	"github.com/srgg/blecentral/internal/gatt"
)

// ResourceKind names what a NotFoundError is about, mirroring the
// teacher's device.NotFoundError.Resource convention.
type ResourceKind string

const (
	ResourceService        ResourceKind = "service"
	ResourceCharacteristic ResourceKind = "characteristic"
)

// NotFoundError reports that a (service[, characteristic]) pair is not
// present in a peripheral's discovered GATT table.
type NotFoundError struct {
	Resource    ResourceKind
	ServiceUUID gatt.UUID
	CharUUID    *gatt.UUID
}

func (e *NotFoundError) Error() string {
	if e.CharUUID == nil {
		return fmt.Sprintf("%s %q not found", e.Resource, e.ServiceUUID)
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, *e.CharUUID, e.ServiceUUID)
}

// Is allows errors.Is(err, ErrNotPresent) to match any NotFoundError,
// regardless of which resource/UUIDs it names.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotPresent
}

// ConnectionState names the specific state-machine failure a
// ConnectionError reports.
type ConnectionState string

const (
	StateNotConnected     ConnectionState = "not_connected"
	StateAlreadyConnected ConnectionState = "already_connected"
	StateDisconnecting    ConnectionState = "disconnecting"
)

// ConnectionError reports a peripheral state-machine problem, mirroring
// the teacher's device.ConnectionError pattern.
type ConnectionError struct {
	PeripheralID string
	State        ConnectionState
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("peripheral %s: %s", e.PeripheralID, e.State)
}

func (e *ConnectionError) Is(target error) bool {
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// ATTError wraps an Attribute Protocol error code reported by the OS
// adapter, passed through to the caller unmodified.
type ATTError struct {
	Code uint8
	Err  error
}

func (e *ATTError) Error() string { return fmt.Sprintf("att error %#x: %v", e.Code, e.Err) }
func (e *ATTError) Unwrap() error { return e.Err }

// OSError wraps any other OS/adapter-level failure not otherwise
// classified (connect failures, subscribe failures, etc).
type OSError struct {
	Err error
}

func (e *OSError) Error() string { return fmt.Sprintf("os error: %v", e.Err) }
func (e *OSError) Unwrap() error { return e.Err }

// Sentinel errors for the remaining classified failure kinds.
var (
	// ErrNotPresent is returned synchronously, before any OS call,
	// when an operation names a characteristic or service that has
	// not been discovered (or was invalidated by didModifyServices).
	ErrNotPresent = errors.New("peripheral: characteristic or service not present")

	// ErrConcurrentWrite is returned when a write is attempted on a
	// characteristic that already has a write (with or without
	// response) in flight.
	ErrConcurrentWrite = errors.New("peripheral: concurrent write on characteristic")

	// ErrIncompatibleFormat is returned when a read or notification
	// value fails to decode under the characteristic's declared type.
	ErrIncompatibleFormat = errors.New("peripheral: incompatible data format")

	// ErrControlPointInProgress is returned when a control-point
	// request is issued while a transaction is already outstanding on
	// that characteristic.
	ErrControlPointInProgress = errors.New("peripheral: control point transaction in progress")

	// ErrControlPointRequiresNotifying is returned when a control-point
	// request is issued before notifications have been enabled (or at
	// least requested) on that characteristic.
	ErrControlPointRequiresNotifying = errors.New("peripheral: control point characteristic is not notifying")

	// ErrResponseFormat is returned when a control-point response
	// fails op-code/operator/operand validation.
	ErrResponseFormat = errors.New("peripheral: control point response format error")

	// ErrTimeout is returned when a control-point transaction's
	// timeout fires before a matching response arrives.
	ErrTimeout = errors.New("peripheral: operation timed out")

	// ErrCancelled is returned to every in-flight continuation when
	// the owning connection is disconnected or its context is
	// cancelled.
	ErrCancelled = errors.New("peripheral: operation cancelled")

	// ErrNotConnected/ErrAlreadyConnected are the ConnectionError
	// sentinels errors.Is compares against by state.
	ErrNotConnected     = &ConnectionError{State: StateNotConnected}
	ErrAlreadyConnected = &ConnectionError{State: StateAlreadyConnected}
)
