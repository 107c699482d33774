package state

import (
	"math/big"

	"usdacore/native/abond"
	"usdacore/native/borrowing"
	"usdacore/native/rate"
	"usdacore/native/treasury"
)

func (m *Manager) RateIndex() (*rate.Index, error) {
	idx := new(rate.Index)
	ok, err := m.KVGet(rateIndexKey, idx)
	if err != nil || !ok {
		return nil, err
	}
	return idx, nil
}

func (m *Manager) PutRateIndex(idx *rate.Index) error {
	return m.KVPut(rateIndexKey, idx)
}

func (m *Manager) TreasuryTotals() (*treasury.Totals, error) {
	totals := new(treasury.Totals)
	ok, err := m.KVGet(treasuryTotalsKey, totals)
	if err != nil || !ok {
		return nil, err
	}
	return totals, nil
}

func (m *Manager) PutTreasuryTotals(totals *treasury.Totals) error {
	return m.KVPut(treasuryTotalsKey, totals.Clone())
}

func (m *Manager) BorrowingRecord(addr [20]byte) (*treasury.BorrowingRecord, error) {
	rec := new(treasury.BorrowingRecord)
	ok, err := m.KVGet(borrowRecordKey(addr), rec)
	if err != nil || !ok {
		return nil, err
	}
	return rec, nil
}

func (m *Manager) PutBorrowingRecord(addr [20]byte, rec *treasury.BorrowingRecord) error {
	return m.KVPut(borrowRecordKey(addr), rec)
}

func (m *Manager) BorrowPosition(owner [20]byte, index uint64) (*borrowing.Position, error) {
	pos := new(borrowing.Position)
	ok, err := m.KVGet(borrowPositionKey(owner, index), pos)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

func (m *Manager) PutBorrowPosition(owner [20]byte, index uint64, pos *borrowing.Position) error {
	return m.KVPut(borrowPositionKey(owner, index), pos.Clone())
}

func (m *Manager) AbondState(addr [20]byte) (*abond.State, error) {
	s := new(abond.State)
	ok, err := m.KVGet(abondStateKey(addr), s)
	if err != nil || !ok {
		return nil, err
	}
	return s, nil
}

func (m *Manager) PutAbondState(addr [20]byte, s *abond.State) error {
	return m.KVPut(abondStateKey(addr), s.Clone())
}

func (m *Manager) AbondSupply() (*big.Int, error) {
	supply := new(big.Int)
	ok, err := m.KVGet(abondSupplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

func (m *Manager) PutAbondSupply(supply *big.Int) error {
	if supply == nil {
		supply = big.NewInt(0)
	}
	return m.KVPut(abondSupplyKey, supply)
}
