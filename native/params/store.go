package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for admin-controlled parameters.
type Store struct {
	state StoreState
}

func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetProtocol validates and persists the protocol parameters as JSON.
func (s *Store) SetProtocol(p Protocol) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode protocol: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyProtocol, encoded)
}

// Protocol loads the persisted parameters, falling back to Default when the
// store has never been written.
func (s *Store) Protocol() (Protocol, error) {
	state, err := s.withState()
	if err != nil {
		return Protocol{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyProtocol)
	if err != nil {
		return Protocol{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Default(), nil
	}
	var p Protocol
	if err := json.Unmarshal(raw, &p); err != nil {
		return Protocol{}, fmt.Errorf("params: decode protocol: %w", err)
	}
	return p, nil
}

// Update loads the parameters, applies fn and persists the result.
func (s *Store) Update(fn func(*Protocol) error) (Protocol, error) {
	current, err := s.Protocol()
	if err != nil {
		return Protocol{}, err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return Protocol{}, err
	}
	if err := s.SetProtocol(next); err != nil {
		return Protocol{}, err
	}
	return next, nil
}
