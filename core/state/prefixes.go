package state

import (
	"encoding/binary"
	"fmt"
)

var (
	paramPrefix            = []byte("params/")
	accountPrefix          = []byte("account/")
	rateIndexKey           = []byte("rate/index")
	treasuryTotalsKey      = []byte("treasury/totals")
	borrowRecordPrefix     = []byte("treasury/record/")
	borrowPositionPrefix   = []byte("borrowing/position/")
	abondStatePrefix       = []byte("abond/holder/")
	abondSupplyKey         = []byte("abond/supply")
	cdsPositionPrefix      = []byte("cds/position/")
	cdsCountPrefix         = []byte("cds/count/")
	cdsPoolKey             = []byte("cds/pool")
	liquidationCountKey    = []byte("cds/liquidations/count")
	liquidationEntryPrefix = []byte("cds/liquidations/entry/")
	multisigConfigKey      = []byte("multisig/config")
	multisigApprovalPrefix = []byte("multisig/approvals/")
	multisigPausedPrefix   = []byte("multisig/paused/")
	outboundSeqFormat      = "crosschain/out/%d/seq"
	deliveredSeqFormat     = "crosschain/out/%d/delivered"
	outboundMsgFormat      = "crosschain/out/%d/msg/%d"
	inboundSeqFormat       = "crosschain/in/%d/seq"
	peerSnapshotFormat     = "crosschain/in/%d/snapshot"
)

func join(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}

func u64(v uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out[:]
}

func paramKey(name string) []byte { return join(paramPrefix, []byte(name)) }

func accountKey(addr [20]byte) []byte { return join(accountPrefix, addr[:]) }

func borrowRecordKey(addr [20]byte) []byte { return join(borrowRecordPrefix, addr[:]) }

func borrowPositionKey(owner [20]byte, index uint64) []byte {
	return join(borrowPositionPrefix, owner[:], u64(index))
}

func abondStateKey(addr [20]byte) []byte { return join(abondStatePrefix, addr[:]) }

func cdsPositionKey(owner [20]byte, index uint64) []byte {
	return join(cdsPositionPrefix, owner[:], u64(index))
}

func cdsCountKey(owner [20]byte) []byte { return join(cdsCountPrefix, owner[:]) }

func liquidationEntryKey(index uint64) []byte { return join(liquidationEntryPrefix, u64(index)) }

func multisigApprovalKey(key string) []byte { return join(multisigApprovalPrefix, []byte(key)) }

func multisigPausedKey(action string) []byte { return join(multisigPausedPrefix, []byte(action)) }

func outboundSeqKey(dst uint64) []byte { return []byte(fmt.Sprintf(outboundSeqFormat, dst)) }

func deliveredSeqKey(dst uint64) []byte { return []byte(fmt.Sprintf(deliveredSeqFormat, dst)) }

func outboundMsgKey(dst, seq uint64) []byte { return []byte(fmt.Sprintf(outboundMsgFormat, dst, seq)) }

func inboundSeqKey(src uint64) []byte { return []byte(fmt.Sprintf(inboundSeqFormat, src)) }

func peerSnapshotKey(src uint64) []byte { return []byte(fmt.Sprintf(peerSnapshotFormat, src)) }
