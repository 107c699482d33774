package events

import (
	"math/big"
	"strconv"

	"usdacore/core/types"
)

const (
	TypeRateUpdated      = "rate.updated"
	TypeParamsUpdated    = "params.updated"
	TypeApprovalRecorded = "multisig.approved"
	TypePauseToggled     = "multisig.pauseToggled"
)

type RateUpdated struct {
	RatePerSecond   *big.Int
	APR             uint64
	CumulativeIndex *big.Int
	Source          string
}

func (RateUpdated) EventType() string { return TypeRateUpdated }

func (e RateUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRateUpdated,
		Attributes: map[string]string{
			"ratePerSecond":   formatAmount(e.RatePerSecond),
			"apr":             formatUint(e.APR),
			"cumulativeIndex": formatAmount(e.CumulativeIndex),
			"source":          e.Source,
		},
	}
}

type ParamsUpdated struct {
	Function string
	Value    string
}

func (ParamsUpdated) EventType() string { return TypeParamsUpdated }

func (e ParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type:       TypeParamsUpdated,
		Attributes: map[string]string{"function": e.Function, "value": e.Value},
	}
}

type ApprovalRecorded struct {
	Owner     [20]byte
	Function  string
	Approvals uint64
}

func (ApprovalRecorded) EventType() string { return TypeApprovalRecorded }

func (e ApprovalRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeApprovalRecorded,
		Attributes: map[string]string{
			"owner":     formatAddress(e.Owner),
			"function":  e.Function,
			"approvals": formatUint(e.Approvals),
		},
	}
}

type PauseToggled struct {
	Action string
	Paused bool
}

func (PauseToggled) EventType() string { return TypePauseToggled }

func (e PauseToggled) Event() *types.Event {
	return &types.Event{
		Type:       TypePauseToggled,
		Attributes: map[string]string{"action": e.Action, "paused": strconv.FormatBool(e.Paused)},
	}
}
