package params

import (
	"errors"
	"fmt"
)

var (
	ErrNotAdmin        = errors.New("params: Caller is not an admin")
	ErrApprovalsNotMet = errors.New("params: required approvals not met")
	ErrZeroValue       = errors.New("params: value can't be zero")
	ErrZeroAddress     = errors.New("params: address can't be zero")
)

// Gate is the owner approval check run before a setter persists.
type Gate interface {
	IsApproved(fn string) (bool, error)
	Consume(fn string) error
}

// RequireAdmin fails unless caller is the configured admin.
func (s *Store) RequireAdmin(caller [20]byte) (Protocol, error) {
	p, err := s.Protocol()
	if err != nil {
		return Protocol{}, err
	}
	if p.Admin == ([20]byte{}) || p.Admin != caller {
		return Protocol{}, ErrNotAdmin
	}
	return p, nil
}

// AdminUpdate runs an approved admin setter. The caller must be the admin,
// mutate must accept the value, and fn must carry enough owner approvals.
// The approvals are consumed once the new parameters are stored.
func (s *Store) AdminUpdate(caller [20]byte, gate Gate, fn string, mutate func(*Protocol) error) (Protocol, error) {
	current, err := s.RequireAdmin(caller)
	if err != nil {
		return Protocol{}, err
	}
	next := current.Clone()
	if err := mutate(&next); err != nil {
		return Protocol{}, err
	}
	if err := next.Validate(); err != nil {
		return Protocol{}, err
	}
	if gate == nil {
		return Protocol{}, fmt.Errorf("%w: no approval gate", ErrApprovalsNotMet)
	}
	ok, err := gate.IsApproved(fn)
	if err != nil {
		return Protocol{}, err
	}
	if !ok {
		return Protocol{}, ErrApprovalsNotMet
	}
	if err := s.SetProtocol(next); err != nil {
		return Protocol{}, err
	}
	if err := gate.Consume(fn); err != nil {
		return Protocol{}, err
	}
	return next, nil
}
