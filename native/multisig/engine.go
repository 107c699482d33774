package multisig

import (
	"errors"
	"fmt"
	"math/bits"

	"usdacore/core/events"
	nativecommon "usdacore/native/common"
)

var (
	ErrNotOwner          = errors.New("multisig: not an owner")
	ErrAlreadyApproved   = errors.New("multisig: already approved")
	ErrApprovalsNotMet   = errors.New("multisig: required approvals not met")
	ErrUnknownFunction   = errors.New("multisig: unknown function")
	ErrUnknownAction     = errors.New("multisig: unknown action")
	ErrNotConfigured     = errors.New("multisig: owners not configured")
	ErrAlreadyConfigured = errors.New("multisig: owners already configured")
	ErrInvalidConfig     = errors.New("multisig: invalid owner configuration")

	errNilState = errors.New("multisig: state not configured")
)

type engineState interface {
	MultisigConfig() (*Config, error)
	PutMultisigConfig(*Config) error
	MultisigApprovals(key string) (uint64, error)
	PutMultisigApprovals(key string, bitmap uint64) error
	MultisigPaused(action string) (bool, error)
	PutMultisigPaused(action string, paused bool) error
}

// Engine records owner approvals for setter functions and pause toggles.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

func NewEngine(state engineState) *Engine {
	return &Engine{state: state, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Configure installs the owner set once.
func (e *Engine) Configure(owners [][20]byte, threshold uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	existing, err := e.state.MultisigConfig()
	if err != nil {
		return err
	}
	if existing != nil && len(existing.Owners) > 0 {
		return ErrAlreadyConfigured
	}
	if len(owners) == 0 || len(owners) > MaxOwners {
		return fmt.Errorf("%w: %d owners", ErrInvalidConfig, len(owners))
	}
	if threshold == 0 || threshold > uint64(len(owners)) {
		return fmt.Errorf("%w: threshold %d", ErrInvalidConfig, threshold)
	}
	seen := make(map[[20]byte]struct{}, len(owners))
	for _, owner := range owners {
		if owner == ([20]byte{}) {
			return fmt.Errorf("%w: zero owner", ErrInvalidConfig)
		}
		if _, dup := seen[owner]; dup {
			return fmt.Errorf("%w: duplicate owner", ErrInvalidConfig)
		}
		seen[owner] = struct{}{}
	}
	cfg := &Config{Owners: append([][20]byte(nil), owners...), Threshold: threshold}
	return e.state.PutMultisigConfig(cfg)
}

func (e *Engine) config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.state.MultisigConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil || len(cfg.Owners) == 0 {
		return nil, ErrNotConfigured
	}
	return cfg, nil
}

func (e *Engine) ownerBit(owner [20]byte) (uint64, *Config, error) {
	cfg, err := e.config()
	if err != nil {
		return 0, nil, err
	}
	for i, candidate := range cfg.Owners {
		if candidate == owner {
			return 1 << uint(i), cfg, nil
		}
	}
	return 0, nil, ErrNotOwner
}

func (e *Engine) approve(owner [20]byte, kind, name string) (uint64, error) {
	bit, _, err := e.ownerBit(owner)
	if err != nil {
		return 0, err
	}
	key := approvalKey(kind, name)
	bitmap, err := e.state.MultisigApprovals(key)
	if err != nil {
		return 0, err
	}
	if bitmap&bit != 0 {
		return 0, ErrAlreadyApproved
	}
	bitmap |= bit
	if err := e.state.PutMultisigApprovals(key, bitmap); err != nil {
		return 0, err
	}
	count := uint64(bits.OnesCount64(bitmap))
	e.emit(events.ApprovalRecorded{Owner: owner, Function: key, Approvals: count})
	return count, nil
}

func (e *Engine) met(kind, name string) (bool, error) {
	cfg, err := e.config()
	if err != nil {
		return false, err
	}
	bitmap, err := e.state.MultisigApprovals(approvalKey(kind, name))
	if err != nil {
		return false, err
	}
	return uint64(bits.OnesCount64(bitmap)) >= cfg.Threshold, nil
}

// ApproveFunction records the owner's approval of a setter and returns the
// number of approvals collected so far.
func (e *Engine) ApproveFunction(owner [20]byte, fn string) (uint64, error) {
	if !IsFunction(fn) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFunction, fn)
	}
	return e.approve(owner, kindFunction, fn)
}

// IsApproved reports whether fn has collected the threshold of approvals.
func (e *Engine) IsApproved(fn string) (bool, error) {
	return e.met(kindFunction, fn)
}

// Consume clears the approvals of fn after a successful execution.
func (e *Engine) Consume(fn string) error {
	ok, err := e.met(kindFunction, fn)
	if err != nil {
		return err
	}
	if !ok {
		return ErrApprovalsNotMet
	}
	return e.state.PutMultisigApprovals(approvalKey(kindFunction, fn), 0)
}

func (e *Engine) ApprovePause(owner [20]byte, action string) (uint64, error) {
	if !nativecommon.IsAction(action) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return e.approve(owner, kindPause, action)
}

func (e *Engine) ApproveUnpause(owner [20]byte, action string) (uint64, error) {
	if !nativecommon.IsAction(action) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return e.approve(owner, kindUnpause, action)
}

// Pause flips action to paused once enough owners approved it. Only an
// owner may execute the toggle.
func (e *Engine) Pause(owner [20]byte, action string) error {
	return e.toggle(owner, kindPause, action, true)
}

// Unpause is the inverse of Pause.
func (e *Engine) Unpause(owner [20]byte, action string) error {
	return e.toggle(owner, kindUnpause, action, false)
}

func (e *Engine) toggle(owner [20]byte, kind, action string, paused bool) error {
	if !nativecommon.IsAction(action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if _, _, err := e.ownerBit(owner); err != nil {
		return err
	}
	ok, err := e.met(kind, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrApprovalsNotMet
	}
	if err := e.state.PutMultisigPaused(action, paused); err != nil {
		return err
	}
	if err := e.state.PutMultisigApprovals(approvalKey(kind, action), 0); err != nil {
		return err
	}
	e.emit(events.PauseToggled{Action: action, Paused: paused})
	return nil
}

// IsPaused implements common.PauseView. A state failure reads as paused.
func (e *Engine) IsPaused(action string) bool {
	if e == nil || e.state == nil {
		return false
	}
	paused, err := e.state.MultisigPaused(action)
	if err != nil {
		return true
	}
	return paused
}

// Owners returns the configured owner set.
func (e *Engine) Owners() (*Config, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return &Config{Owners: append([][20]byte(nil), cfg.Owners...), Threshold: cfg.Threshold}, nil
}
