package state

import "usdacore/native/crosschain"

func (m *Manager) getUint(key []byte) (uint64, error) {
	var v uint64
	if _, err := m.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m *Manager) OutboundSequence(dst uint64) (uint64, error) {
	return m.getUint(outboundSeqKey(dst))
}

func (m *Manager) PutOutboundSequence(dst uint64, seq uint64) error {
	return m.KVPut(outboundSeqKey(dst), seq)
}

func (m *Manager) DeliveredSequence(dst uint64) (uint64, error) {
	return m.getUint(deliveredSeqKey(dst))
}

func (m *Manager) PutDeliveredSequence(dst uint64, seq uint64) error {
	return m.KVPut(deliveredSeqKey(dst), seq)
}

func (m *Manager) OutboundMessage(dst uint64, seq uint64) (*crosschain.OutboundRecord, error) {
	rec := new(crosschain.OutboundRecord)
	ok, err := m.KVGet(outboundMsgKey(dst, seq), rec)
	if err != nil || !ok {
		return nil, err
	}
	return rec, nil
}

func (m *Manager) PutOutboundMessage(dst uint64, seq uint64, rec *crosschain.OutboundRecord) error {
	return m.KVPut(outboundMsgKey(dst, seq), rec)
}

func (m *Manager) InboundSequence(src uint64) (uint64, error) {
	return m.getUint(inboundSeqKey(src))
}

func (m *Manager) PutInboundSequence(src uint64, seq uint64) error {
	return m.KVPut(inboundSeqKey(src), seq)
}

func (m *Manager) PeerSnapshot(src uint64) (*crosschain.Snapshot, error) {
	snap := new(crosschain.Snapshot)
	ok, err := m.KVGet(peerSnapshotKey(src), snap)
	if err != nil || !ok {
		return nil, err
	}
	return snap, nil
}

func (m *Manager) PutPeerSnapshot(src uint64, snap *crosschain.Snapshot) error {
	return m.KVPut(peerSnapshotKey(src), snap)
}
