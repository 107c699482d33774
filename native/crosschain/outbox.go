package crosschain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"usdacore/core/events"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/treasury"
)

var (
	ErrInsufficientFee = errors.New("crosschain: Don't have enough LZ fee")
	ErrNoMessenger     = errors.New("crosschain: messenger not configured")

	errNilState = errors.New("crosschain: state not configured")
)

// Messenger quotes and transports messages to a peer deployment.
type Messenger interface {
	Quote(kind string, dstChain uint64, options []byte, payInNative bool) (*big.Int, error)
	Send(ctx context.Context, msg Message) error
}

type outboxState interface {
	OutboundSequence(dst uint64) (uint64, error)
	PutOutboundSequence(dst uint64, seq uint64) error
	DeliveredSequence(dst uint64) (uint64, error)
	PutDeliveredSequence(dst uint64, seq uint64) error
	OutboundMessage(dst uint64, seq uint64) (*OutboundRecord, error)
	PutOutboundMessage(dst uint64, seq uint64, rec *OutboundRecord) error
}

// Outbox sequences, signs and pays for outbound snapshots. Preparing a
// message is part of the calling transaction; delivery happens after commit.
type Outbox struct {
	state     outboxState
	ledger    *treasury.Ledger
	caller    treasury.Caller
	messenger Messenger
	signer    *crypto.PrivateKey
	chainID   uint64
	emitter   events.Emitter
}

func NewOutbox(state outboxState, ledger *treasury.Ledger, caller treasury.Caller, messenger Messenger, signer *crypto.PrivateKey, chainID uint64) *Outbox {
	return &Outbox{
		state:     state,
		ledger:    ledger,
		caller:    caller,
		messenger: messenger,
		signer:    signer,
		chainID:   chainID,
		emitter:   events.NoopEmitter{},
	}
}

func (o *Outbox) SetEmitter(emitter events.Emitter) {
	if o == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	o.emitter = emitter
}

// DispatchRequest describes who pays for a snapshot and where it goes.
type DispatchRequest struct {
	Payer       [20]byte
	DstChain    uint64
	Fee         *big.Int
	Options     []byte
	PayInNative bool
	Snapshot    Snapshot
}

// CheckFee quotes the message and rejects an insufficient fee. It has no
// side effects, so callers run it before any other mutation.
func (o *Outbox) CheckFee(dstChain uint64, fee *big.Int, options []byte, payInNative bool) (*big.Int, error) {
	if o == nil || o.messenger == nil {
		return nil, ErrNoMessenger
	}
	quote, err := o.messenger.Quote(KindSnapshot, dstChain, options, payInNative)
	if err != nil {
		return nil, fmt.Errorf("crosschain: quote: %w", err)
	}
	if quote == nil {
		quote = big.NewInt(0)
	}
	if fee == nil {
		fee = big.NewInt(0)
	}
	if fee.Cmp(quote) < 0 {
		return nil, fmt.Errorf("%w: quote %s supplied %s", ErrInsufficientFee, quote, fee)
	}
	return quote, nil
}

// Prepare charges the quoted fee, assigns the next channel sequence and
// stores the signed message for delivery.
func (o *Outbox) Prepare(req DispatchRequest) (*Message, error) {
	if o == nil || o.state == nil || o.ledger == nil {
		return nil, errNilState
	}
	quote, err := o.CheckFee(req.DstChain, req.Fee, req.Options, req.PayInNative)
	if err != nil {
		return nil, err
	}
	if quote.Sign() > 0 {
		if err := o.ledger.Collect(o.caller, req.Payer, types.AssetNative, quote); err != nil {
			return nil, fmt.Errorf("crosschain: collect fee: %w", err)
		}
		if err := o.ledger.RecordMessagingFee(o.caller, quote); err != nil {
			return nil, err
		}
	}
	seq, err := o.state.OutboundSequence(req.DstChain)
	if err != nil {
		return nil, err
	}
	seq++
	snapshot := req.Snapshot
	snapshot.ensureDefaults()
	msg := &Message{
		ID:       uuid.NewString(),
		Kind:     KindSnapshot,
		SrcChain: o.chainID,
		DstChain: req.DstChain,
		Sequence: seq,
		Snapshot: snapshot,
		Fee:      new(big.Int).Set(quote),
	}
	if err := msg.Sign(o.signer); err != nil {
		return nil, err
	}
	if err := o.state.PutOutboundSequence(req.DstChain, seq); err != nil {
		return nil, err
	}
	if err := o.state.PutOutboundMessage(req.DstChain, seq, &OutboundRecord{Message: *msg}); err != nil {
		return nil, err
	}
	o.emitter.Emit(events.MessageSent{
		ID:       msg.ID,
		Kind:     msg.Kind,
		DstChain: msg.DstChain,
		Sequence: msg.Sequence,
		Fee:      msg.Fee,
	})
	return msg, nil
}

// Pending returns undelivered messages for dst in sequence order.
func (o *Outbox) Pending(dst uint64) ([]Message, error) {
	if o == nil || o.state == nil {
		return nil, errNilState
	}
	delivered, err := o.state.DeliveredSequence(dst)
	if err != nil {
		return nil, err
	}
	latest, err := o.state.OutboundSequence(dst)
	if err != nil {
		return nil, err
	}
	var out []Message
	for seq := delivered + 1; seq <= latest; seq++ {
		rec, err := o.state.OutboundMessage(dst, seq)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Delivered {
			continue
		}
		out = append(out, rec.Message)
	}
	return out, nil
}

// MarkDelivered records a successful send. Delivery is acknowledged in
// order, so the delivered watermark only moves forward.
func (o *Outbox) MarkDelivered(dst, seq uint64) error {
	if o == nil || o.state == nil {
		return errNilState
	}
	rec, err := o.state.OutboundMessage(dst, seq)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("crosschain: no outbound message %d for chain %d", seq, dst)
	}
	rec.Delivered = true
	if err := o.state.PutOutboundMessage(dst, seq, rec); err != nil {
		return err
	}
	delivered, err := o.state.DeliveredSequence(dst)
	if err != nil {
		return err
	}
	if seq == delivered+1 {
		return o.state.PutDeliveredSequence(dst, seq)
	}
	return nil
}

// Send hands msg to the messenger.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	if o == nil || o.messenger == nil {
		return ErrNoMessenger
	}
	return o.messenger.Send(ctx, msg)
}
