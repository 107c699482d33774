package genesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"usdacore/core/state"
	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/params"
	"usdacore/storage"
)

func addr(b byte) string {
	return crypto.NewAddress(crypto.USDAPrefix, bytes.Repeat([]byte{b}, 20)).String()
}

func writeSpec(t *testing.T, spec GenesisSpec) string {
	t.Helper()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func validSpec() GenesisSpec {
	ltv := uint64(75)
	return GenesisSpec{
		GenesisTime: "2024-01-01T00:00:00Z",
		ChainID:     1,
		Admin:       addr(0xad),
		Params:      &ParamsSpec{LTV: &ltv, USDTLimit: "5000000000"},
		Multisig:    MultisigSpec{Owners: []string{addr(0x01), addr(0x02)}, Threshold: 2},
		Alloc: map[string]map[string]string{
			addr(0xb0): {"ETH": "1000000000000000000", "USDa": "250"},
			addr(0xc0): {"USDT": "900"},
		},
	}
}

func TestLoadAndApplyGenesis(t *testing.T) {
	spec, err := LoadGenesisSpec(writeSpec(t, validSpec()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	db := storage.NewMemDB()
	m := state.NewManager(db)
	if err := Apply(spec, m); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	m = state.NewManager(db)
	p, err := params.NewStore(m).Protocol()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.LTV != 75 || p.USDTLimit.Int64() != 5_000_000_000 || p.BondRatio != 4 {
		t.Fatalf("unexpected params %+v", p)
	}
	raw, _ := crypto.ParseRaw(addr(0xb0))
	acc, err := m.GetAccount(raw)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance(types.AssetUSDa).Int64() != 250 {
		t.Fatalf("expected USDa allocation, got %s", acc.Balance(types.AssetUSDa))
	}
	totals, err := m.TreasuryTotals()
	if err != nil || totals == nil || totals.USDaSupply.Int64() != 250 {
		t.Fatalf("expected genesis USDa supply, got %+v err=%v", totals, err)
	}
	idx, err := m.RateIndex()
	if err != nil || idx == nil {
		t.Fatalf("rate index: %v", err)
	}
	if idx.LastUpdate != uint64(spec.GenesisTimestamp().Unix()) {
		t.Fatalf("index not anchored at genesis time")
	}

	if err := Apply(spec, m); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}
}

func TestValidateRejectsBadSpecs(t *testing.T) {
	cases := map[string]func(*GenesisSpec){
		"missing time":      func(s *GenesisSpec) { s.GenesisTime = "" },
		"missing admin":     func(s *GenesisSpec) { s.Admin = "" },
		"threshold":         func(s *GenesisSpec) { s.Multisig.Threshold = 3 },
		"duplicate owner":   func(s *GenesisSpec) { s.Multisig.Owners = []string{addr(1), addr(1)} },
		"unknown asset":     func(s *GenesisSpec) { s.Alloc[addr(0xb0)] = map[string]string{"BTC": "1"} },
		"negative amount":   func(s *GenesisSpec) { s.Alloc[addr(0xb0)] = map[string]string{"ETH": "-1"} },
		"bad rate":          func(s *GenesisSpec) { s.Rate = &RateSpec{RatePerSecond: "0"} },
		"zero ltv override": func(s *GenesisSpec) { zero := uint64(0); s.Params.LTV = &zero },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := validSpec()
			mutate(&spec)
			if err := spec.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
