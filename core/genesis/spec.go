package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"usdacore/core/types"
	"usdacore/crypto"
	"usdacore/native/params"
)

// GenesisSpec is the JSON document that seeds a fresh deployment.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime"`
	ChainID     uint64                       `json:"chainId"`
	Admin       string                       `json:"admin"`
	Options     string                       `json:"options,omitempty"`
	Params      *ParamsSpec                  `json:"params,omitempty"`
	Multisig    MultisigSpec                 `json:"multisig"`
	Rate        *RateSpec                    `json:"rate,omitempty"`
	Alloc       map[string]map[string]string `json:"alloc"` // addr -> asset -> amount

	genesisTimestamp time.Time
	admin            [20]byte
	options          [20]byte
	owners           [][20]byte
	alloc            []allocation
	ratePerSecond    *big.Int
}

// ParamsSpec overrides the launch parameters. Omitted fields keep their
// defaults.
type ParamsSpec struct {
	LTV                     *uint64 `json:"ltv,omitempty"`
	BondRatio               *uint64 `json:"bondRatio,omitempty"`
	MinHealthBps            *uint64 `json:"minHealthBps,omitempty"`
	LiquidationThresholdBps *uint64 `json:"liquidationThresholdBps,omitempty"`
	AbondBackingBps         *uint64 `json:"abondBackingBps,omitempty"`
	AbondInterestShareBps   *uint64 `json:"abondInterestShareBps,omitempty"`
	CoverageRatioBps        *uint64 `json:"coverageRatioBps,omitempty"`
	PriceToleranceBps       *uint64 `json:"priceToleranceBps,omitempty"`
	WithdrawTimeLimit       *uint64 `json:"withdrawTimeLimit,omitempty"`
	USDTLimit               string  `json:"usdtLimit,omitempty"`
	USDaMinBps              *uint64 `json:"usdaMinBps,omitempty"`
}

type MultisigSpec struct {
	Owners    []string `json:"owners"`
	Threshold uint64   `json:"threshold"`
}

// RateSpec sets the starting per-second rate in ray.
type RateSpec struct {
	RatePerSecond string `json:"ratePerSecond"`
	APR           uint64 `json:"apr"`
}

type allocation struct {
	addr   [20]byte
	asset  types.Asset
	amount *big.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Protocol applies the overrides to the launch defaults.
func (s *GenesisSpec) Protocol() (params.Protocol, error) {
	p := params.Default()
	p.Admin = s.admin
	p.Options = s.options
	if o := s.Params; o != nil {
		for _, field := range []struct {
			src *uint64
			dst *uint64
		}{
			{o.LTV, &p.LTV},
			{o.BondRatio, &p.BondRatio},
			{o.MinHealthBps, &p.MinHealthBps},
			{o.LiquidationThresholdBps, &p.LiquidationThresholdBps},
			{o.AbondBackingBps, &p.AbondBackingBps},
			{o.AbondInterestShareBps, &p.AbondInterestShareBps},
			{o.CoverageRatioBps, &p.CoverageRatioBps},
			{o.PriceToleranceBps, &p.PriceToleranceBps},
			{o.WithdrawTimeLimit, &p.WithdrawTimeLimit},
			{o.USDaMinBps, &p.USDaMinBps},
		} {
			if field.src != nil {
				*field.dst = *field.src
			}
		}
		if strings.TrimSpace(o.USDTLimit) != "" {
			limit, err := parseAmountString(o.USDTLimit)
			if err != nil {
				return params.Protocol{}, fmt.Errorf("usdtLimit: %w", err)
			}
			p.USDTLimit = limit
		}
	}
	if err := p.Validate(); err != nil {
		return params.Protocol{}, err
	}
	return p, nil
}

// Validate parses every address and amount and fixes the allocation order.
func (s *GenesisSpec) Validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.Admin) == "" {
		return fmt.Errorf("admin must be provided")
	}
	if s.admin, err = crypto.ParseRaw(s.Admin); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if strings.TrimSpace(s.Options) != "" {
		if s.options, err = crypto.ParseRaw(s.Options); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}

	if len(s.Multisig.Owners) == 0 {
		return fmt.Errorf("multisig: at least one owner required")
	}
	if s.Multisig.Threshold == 0 || s.Multisig.Threshold > uint64(len(s.Multisig.Owners)) {
		return fmt.Errorf("multisig: threshold %d out of range for %d owners", s.Multisig.Threshold, len(s.Multisig.Owners))
	}
	s.owners = s.owners[:0]
	seen := make(map[[20]byte]struct{}, len(s.Multisig.Owners))
	for i, owner := range s.Multisig.Owners {
		addr, err := crypto.ParseRaw(owner)
		if err != nil {
			return fmt.Errorf("multisig owner[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("multisig owner[%d]: duplicate %s", i, owner)
		}
		seen[addr] = struct{}{}
		s.owners = append(s.owners, addr)
	}

	if s.Rate != nil {
		rate, ok := new(big.Int).SetString(strings.TrimSpace(s.Rate.RatePerSecond), 10)
		if !ok || rate.Sign() <= 0 {
			return fmt.Errorf("rate: invalid ratePerSecond %q", s.Rate.RatePerSecond)
		}
		s.ratePerSecond = rate
	}

	s.alloc = s.alloc[:0]
	for addrStr, balances := range s.Alloc {
		addr, err := crypto.ParseRaw(addrStr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addrStr, err)
		}
		for symbol, amountStr := range balances {
			asset, err := types.ParseAsset(symbol)
			if err != nil {
				return fmt.Errorf("alloc %q: %w", addrStr, err)
			}
			amount, err := parseAmountString(amountStr)
			if err != nil {
				return fmt.Errorf("alloc %q %s: %w", addrStr, symbol, err)
			}
			s.alloc = append(s.alloc, allocation{addr: addr, asset: asset, amount: amount})
		}
	}
	sort.Slice(s.alloc, func(i, j int) bool {
		if c := bytes.Compare(s.alloc[i].addr[:], s.alloc[j].addr[:]); c != 0 {
			return c < 0
		}
		return s.alloc[i].asset < s.alloc[j].asset
	})

	if _, err := s.Protocol(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime %q: %w", value, err)
	}
	return ts.UTC(), nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
