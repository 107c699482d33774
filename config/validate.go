package config

import (
	"fmt"
	"math/big"
	"strings"

	"usdacore/crypto"
)

// Validate checks the fields the node cannot start without.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("ChainID must be set")
	}
	if c.PeerChainID == c.ChainID {
		return fmt.Errorf("PeerChainID must differ from ChainID")
	}
	if c.PeerChainID != 0 {
		if strings.TrimSpace(c.PeerSigner) == "" {
			return fmt.Errorf("PeerSigner required when PeerChainID is set")
		}
		if _, err := crypto.ParseRaw(c.PeerSigner); err != nil {
			return fmt.Errorf("PeerSigner: %w", err)
		}
	}
	if c.Custody != "" {
		if _, err := crypto.ParseRaw(c.Custody); err != nil {
			return fmt.Errorf("Custody: %w", err)
		}
	}
	if _, err := c.Messaging.Fees(); err != nil {
		return err
	}
	if c.Yield.YieldBps > 10_000 {
		return fmt.Errorf("yield.YieldBps above 10000")
	}
	return nil
}

// Fees is the parsed messaging fee schedule.
type Fees struct {
	Native *big.Int
	Token  *big.Int
}

func (m Messaging) Fees() (Fees, error) {
	native, err := parseUintAmount(m.NativeFeeWei)
	if err != nil {
		return Fees{}, fmt.Errorf("invalid messaging.NativeFeeWei: %w", err)
	}
	token, err := parseUintAmount(m.TokenFee)
	if err != nil {
		return Fees{}, fmt.Errorf("invalid messaging.TokenFee: %w", err)
	}
	return Fees{Native: native, Token: token}, nil
}

// PeerSignerRaw and CustodyRaw decode addresses already checked by Validate.
func (c *Config) PeerSignerRaw() [20]byte {
	raw, _ := crypto.ParseRaw(c.PeerSigner)
	return raw
}

func (c *Config) CustodyRaw() [20]byte {
	raw, _ := crypto.ParseRaw(c.Custody)
	return raw
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative")
	}
	return amount, nil
}
