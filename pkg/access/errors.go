// Package access provides capability-based authorization and the two-step
// admin handover.
package access

import "errors"

var (
	// ErrUnauthorized indicates that the caller lacks the required capability.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyPrincipal indicates an empty principal handle.
	ErrEmptyPrincipal = errors.New("principal must not be empty")
	// ErrUnknownCapability indicates a capability outside the known set.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrAdminViaHandoverOnly indicates an attempt to grant or revoke the admin capability directly.
	ErrAdminViaHandoverOnly = errors.New("admin capability can only move via handover")
	// ErrHandoverPending indicates that a handover is already in progress.
	ErrHandoverPending = errors.New("admin handover already pending")
	// ErrNoHandoverPending indicates that no handover is in progress.
	ErrNoHandoverPending = errors.New("no admin handover pending")
	// ErrNotPendingAdmin indicates that the caller is not the pending admin.
	ErrNotPendingAdmin = errors.New("caller is not the pending admin")
)
