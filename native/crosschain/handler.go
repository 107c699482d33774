package crosschain

import (
	"errors"
	"fmt"
	"math/big"

	"usdacore/core/events"
	nativecommon "usdacore/native/common"
)

var (
	ErrUnknownPeer  = errors.New("crosschain: message from unknown peer chain")
	ErrBadSignature = errors.New("crosschain: message not signed by peer")
	ErrWrongChain   = errors.New("crosschain: message addressed to another chain")
)

type handlerState interface {
	InboundSequence(src uint64) (uint64, error)
	PutInboundSequence(src uint64, seq uint64) error
	PeerSnapshot(src uint64) (*Snapshot, error)
	PutPeerSnapshot(src uint64, snap *Snapshot) error
}

// Handler applies snapshots received from the configured peer. A message is
// applied only when its sequence is newer than the last one applied, so
// redelivered and reordered messages are harmless.
type Handler struct {
	state      handlerState
	chainID    uint64
	peerChain  uint64
	peerSigner [20]byte
	pauses     nativecommon.PauseView
	emitter    events.Emitter
}

func NewHandler(state handlerState, chainID, peerChain uint64, peerSigner [20]byte) *Handler {
	return &Handler{
		state:      state,
		chainID:    chainID,
		peerChain:  peerChain,
		peerSigner: peerSigner,
		emitter:    events.NoopEmitter{},
	}
}

func (h *Handler) SetPauses(p nativecommon.PauseView) {
	if h == nil {
		return
	}
	h.pauses = p
}

func (h *Handler) SetEmitter(emitter events.Emitter) {
	if h == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	h.emitter = emitter
}

// Apply verifies and stores msg. It reports whether the snapshot replaced
// the stored one.
func (h *Handler) Apply(msg Message) (bool, error) {
	if h == nil || h.state == nil {
		return false, errNilState
	}
	if err := nativecommon.Guard(h.pauses, nativecommon.ActionCrossChainApply); err != nil {
		return false, err
	}
	if msg.SrcChain != h.peerChain {
		return false, fmt.Errorf("%w: %d", ErrUnknownPeer, msg.SrcChain)
	}
	if msg.DstChain != h.chainID {
		return false, fmt.Errorf("%w: %d", ErrWrongChain, msg.DstChain)
	}
	signer, err := msg.Signer()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != h.peerSigner {
		return false, ErrBadSignature
	}
	last, err := h.state.InboundSequence(msg.SrcChain)
	if err != nil {
		return false, err
	}
	if msg.Sequence <= last {
		h.emitter.Emit(events.MessageApplied{ID: msg.ID, SrcChain: msg.SrcChain, Sequence: msg.Sequence, Stale: true})
		return false, nil
	}
	snap := msg.Snapshot
	snap.ensureDefaults()
	if err := h.state.PutPeerSnapshot(msg.SrcChain, &snap); err != nil {
		return false, err
	}
	if err := h.state.PutInboundSequence(msg.SrcChain, msg.Sequence); err != nil {
		return false, err
	}
	h.emitter.Emit(events.MessageApplied{ID: msg.ID, SrcChain: msg.SrcChain, Sequence: msg.Sequence})
	return true, nil
}

// Peer returns the last applied snapshot, zero-valued before the first one.
func (h *Handler) Peer() (*Snapshot, error) {
	if h == nil || h.state == nil {
		return nil, errNilState
	}
	snap, err := h.state.PeerSnapshot(h.peerChain)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = &Snapshot{}
	}
	snap.ensureDefaults()
	return snap, nil
}

// PeerCDSLiquidity feeds the borrowing coverage check.
func (h *Handler) PeerCDSLiquidity() (*big.Int, error) {
	snap, err := h.Peer()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(snap.CDSLiquidity), nil
}
