package events

import (
	"math/big"
	"strconv"

	"usdacore/core/types"
)

const (
	TypeMessageSent    = "crosschain.sent"
	TypeMessageApplied = "crosschain.applied"
)

type MessageSent struct {
	ID       string
	Kind     string
	DstChain uint64
	Sequence uint64
	Fee      *big.Int
}

func (MessageSent) EventType() string { return TypeMessageSent }

func (e MessageSent) Event() *types.Event {
	return &types.Event{
		Type: TypeMessageSent,
		Attributes: map[string]string{
			"id":       e.ID,
			"kind":     e.Kind,
			"dstChain": formatUint(e.DstChain),
			"sequence": formatUint(e.Sequence),
			"fee":      formatAmount(e.Fee),
		},
	}
}

type MessageApplied struct {
	ID       string
	SrcChain uint64
	Sequence uint64
	Stale    bool
}

func (MessageApplied) EventType() string { return TypeMessageApplied }

func (e MessageApplied) Event() *types.Event {
	return &types.Event{
		Type: TypeMessageApplied,
		Attributes: map[string]string{
			"id":       e.ID,
			"srcChain": formatUint(e.SrcChain),
			"sequence": formatUint(e.Sequence),
			"stale":    strconv.FormatBool(e.Stale),
		},
	}
}
