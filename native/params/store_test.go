package params

import (
	"errors"
	"testing"
)

type memParams map[string][]byte

func (m memParams) ParamStoreSet(name string, value []byte) error {
	m[name] = append([]byte(nil), value...)
	return nil
}

func (m memParams) ParamStoreGet(name string) ([]byte, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func TestProtocolDefaultsWhenUnset(t *testing.T) {
	store := NewStore(memParams{})
	p, err := store.Protocol()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.LTV != 80 || p.BondRatio != 4 || p.USDTLimit.Int64() != 20_000_000_000 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestUpdatePersistsAndValidates(t *testing.T) {
	store := NewStore(memParams{})
	if _, err := store.Update(func(p *Protocol) error { p.LTV = 75; return nil }); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err := store.Protocol()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if p.LTV != 75 {
		t.Fatalf("expected LTV 75, got %d", p.LTV)
	}
	_, err = store.Update(func(p *Protocol) error { p.BondRatio = 0; return nil })
	if !errors.Is(err, errZeroBondRatio) {
		t.Fatalf("expected zero bond ratio error, got %v", err)
	}
	p, _ = store.Protocol()
	if p.BondRatio != 4 {
		t.Fatalf("invalid update must not persist")
	}
}

func TestValidateRejectsOutOfRangeBps(t *testing.T) {
	p := Default()
	p.CoverageRatioBps = 10_001
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
