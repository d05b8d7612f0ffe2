package engine

import (
	"time"

	storageerr "github.com/cobaltstore/cobaltstore/internal/errors"
	"github.com/cobaltstore/cobaltstore/internal/uid"
)

// Lease duration bounds in seconds (excluding InfiniteLeaseDuration).
const (
	minLeaseDuration = 15
	maxLeaseDuration = 60
)

// leaseSlot holds the zero-or-one active lease of a container or base blob
// and implements the lease state machine once for both resource kinds.
//
// The slot evaluates expiry lazily: every entry point first drops a lease
// whose expiration or break time has passed, so an expired lease silently
// becomes available on the next observation. Callers must hold the Engine
// mutex; the slot itself has no locking.
type leaseSlot struct {
	lease *Lease
}

// expire drops the lease if its expiration time or break time has passed.
func (s *leaseSlot) expire(now time.Time) {
	l := s.lease
	if l == nil {
		return
	}
	if !l.BreakAt.IsZero() && !now.Before(l.BreakAt) {
		s.lease = nil
		return
	}
	if l.State == LeaseStateLeased && !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt) {
		s.lease = nil
	}
}

// Acquire creates a new lease. Valid only when no active lease exists.
// durationSeconds must be InfiniteLeaseDuration or within [15, 60].
func (s *leaseSlot) Acquire(now time.Time, durationSeconds int, proposedID string) (*Lease, error) {
	if durationSeconds != InfiniteLeaseDuration &&
		(durationSeconds < minLeaseDuration || durationSeconds > maxLeaseDuration) {
		return nil, storageerr.ErrInvalidLeaseDuration
	}

	s.expire(now)
	if s.lease != nil {
		return nil, storageerr.ErrLeaseAlreadyPresent
	}

	id := proposedID
	if id == "" {
		id = uid.NewUUID()
	}
	l := &Lease{
		ID:         id,
		Duration:   durationSeconds,
		AcquiredAt: now,
		State:      LeaseStateLeased,
	}
	if durationSeconds != InfiniteLeaseDuration {
		l.ExpiresAt = now.Add(time.Duration(durationSeconds) * time.Second)
	}
	s.lease = l
	return l.copy(), nil
}

// Renew resets the lease clock from its original duration. Valid from the
// leased and breaking states.
func (s *leaseSlot) Renew(now time.Time, leaseID string) (*Lease, error) {
	s.expire(now)
	l := s.lease
	if l == nil {
		return nil, storageerr.ErrLeaseNotPresent
	}
	if l.ID != leaseID {
		return nil, storageerr.ErrLeaseIDMismatch
	}
	if l.State == LeaseStateBroken {
		return nil, storageerr.ErrLeaseNotPresent
	}

	l.AcquiredAt = now
	if l.Duration == InfiniteLeaseDuration {
		l.ExpiresAt = time.Time{}
	} else {
		l.ExpiresAt = now.Add(time.Duration(l.Duration) * time.Second)
	}
	return l.copy(), nil
}

// Release removes the lease. Valid from any lease-holding state; the ID must
// match.
func (s *leaseSlot) Release(now time.Time, leaseID string) error {
	s.expire(now)
	l := s.lease
	if l == nil {
		return storageerr.ErrLeaseNotPresent
	}
	if l.ID != leaseID {
		return storageerr.ErrLeaseIDMismatch
	}
	s.lease = nil
	return nil
}

// Break requests a break of the current lease without requiring its ID.
// periodSeconds delays the break; 0 breaks immediately. Returns the number of
// whole seconds remaining until the break completes.
//
// Breaking an already-breaking lease does not reset its break time; the
// remaining time is reported instead.
func (s *leaseSlot) Break(now time.Time, periodSeconds int) (int, error) {
	s.expire(now)
	l := s.lease
	if l == nil {
		return 0, storageerr.ErrLeaseNotPresent
	}

	if l.State == LeaseStateLeased {
		l.BreakAt = now.Add(time.Duration(periodSeconds) * time.Second)
		if periodSeconds > 0 {
			l.State = LeaseStateBreaking
		} else {
			l.State = LeaseStateBroken
		}
	}

	remaining := int(l.BreakAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Change replaces the lease ID with proposedID, leaving every other lease
// field unchanged. Valid only from the leased state.
func (s *leaseSlot) Change(now time.Time, leaseID, proposedID string) (*Lease, error) {
	s.expire(now)
	l := s.lease
	if l == nil {
		return nil, storageerr.ErrLeaseNotPresent
	}
	if l.ID != leaseID {
		return nil, storageerr.ErrLeaseIDMismatch
	}
	if l.State != LeaseStateLeased {
		return nil, storageerr.ErrLeaseNotPresent
	}
	l.ID = proposedID
	return l.copy(), nil
}

// validateWrite enforces lease protection for non-lease mutating operations:
// if an active lease exists, the caller must supply its ID.
func (s *leaseSlot) validateWrite(now time.Time, leaseID string) error {
	s.expire(now)
	l := s.lease
	if l == nil {
		return nil
	}
	if leaseID == "" {
		return storageerr.ErrLeaseIDMissing
	}
	if leaseID != l.ID {
		return storageerr.ErrLeaseIDMismatch
	}
	return nil
}

// status derives the externally visible lease status and state as of now,
// without mutating the slot.
func (s *leaseSlot) status(now time.Time) (LeaseStatus, LeaseState) {
	l := s.lease
	if l == nil {
		return LeaseStatusUnlocked, LeaseStateAvailable
	}
	if !l.BreakAt.IsZero() && !now.Before(l.BreakAt) {
		return LeaseStatusUnlocked, LeaseStateBroken
	}
	switch l.State {
	case LeaseStateBreaking:
		return LeaseStatusLocked, LeaseStateBreaking
	case LeaseStateBroken:
		return LeaseStatusUnlocked, LeaseStateBroken
	default:
		if !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt) {
			return LeaseStatusUnlocked, LeaseStateExpired
		}
		return LeaseStatusLocked, LeaseStateLeased
	}
}

// copy returns a copy of the lease safe to hand to callers.
func (l *Lease) copy() *Lease {
	cp := *l
	return &cp
}
