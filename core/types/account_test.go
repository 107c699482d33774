package types

import (
	"errors"
	"math/big"
	"testing"
)

func TestAccountCreditDebit(t *testing.T) {
	acc := NewAccount()
	if err := acc.Credit(AssetUSDT, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := acc.Debit(AssetUSDT, big.NewInt(200)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if got := acc.Balance(AssetUSDT); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("unexpected balance %s", got)
	}
	err := acc.Debit(AssetUSDT, big.NewInt(301))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := acc.Balance(AssetUSDa); got.Sign() != 0 {
		t.Fatalf("untouched balance should be zero, got %s", got)
	}
}

func TestParseAsset(t *testing.T) {
	asset, err := ParseAsset(" usda ")
	if err != nil || asset != AssetUSDa {
		t.Fatalf("unexpected parse result %v %v", asset, err)
	}
	if _, err := ParseAsset("doge"); err == nil {
		t.Fatalf("expected error for unknown asset")
	}
}
