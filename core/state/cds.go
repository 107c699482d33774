package state

import "usdacore/native/cds"

func (m *Manager) CDSPosition(owner [20]byte, index uint64) (*cds.Position, error) {
	pos := new(cds.Position)
	ok, err := m.KVGet(cdsPositionKey(owner, index), pos)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

func (m *Manager) PutCDSPosition(owner [20]byte, index uint64, pos *cds.Position) error {
	return m.KVPut(cdsPositionKey(owner, index), pos.Clone())
}

func (m *Manager) CDSDepositorCount(owner [20]byte) (uint64, error) {
	var count uint64
	if _, err := m.KVGet(cdsCountKey(owner), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (m *Manager) PutCDSDepositorCount(owner [20]byte, count uint64) error {
	return m.KVPut(cdsCountKey(owner), count)
}

func (m *Manager) CDSPool() (*cds.Pool, error) {
	pool := new(cds.Pool)
	ok, err := m.KVGet(cdsPoolKey, pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (m *Manager) PutCDSPool(pool *cds.Pool) error {
	return m.KVPut(cdsPoolKey, pool.Clone())
}

func (m *Manager) LiquidationEntryCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(liquidationCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (m *Manager) LiquidationEntry(index uint64) (*cds.LiquidationEntry, error) {
	entry := new(cds.LiquidationEntry)
	ok, err := m.KVGet(liquidationEntryKey(index), entry)
	if err != nil || !ok {
		return nil, err
	}
	return entry, nil
}

// AppendLiquidationEntry stores entry at the next ledger index and returns
// that index.
func (m *Manager) AppendLiquidationEntry(entry *cds.LiquidationEntry) (uint64, error) {
	count, err := m.LiquidationEntryCount()
	if err != nil {
		return 0, err
	}
	if err := m.KVPut(liquidationEntryKey(count), entry); err != nil {
		return 0, err
	}
	if err := m.KVPut(liquidationCountKey, count+1); err != nil {
		return 0, err
	}
	return count, nil
}
