package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"usdacore/crypto"
)

func peerAddress(b byte) string {
	raw := make([]byte, 20)
	raw[0] = b
	return crypto.NewAddress(crypto.USDAPrefix, raw).String()
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 1, cfg.ChainID)
	require.Equal(t, filepath.Join(dir, "signer.keystore"), cfg.SignerKeystorePath)
	_, err = os.Stat(cfg.SignerKeystorePath)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.SignerKeystorePath, again.SignerKeystorePath)
	require.EqualValues(t, 300, again.Oracle.MaxAgeSeconds)
}

func TestLoadParsesPeerSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `DataDir = "./data"
GenesisFile = "genesis.json"
ChainID = 1
PeerChainID = 2
PeerSigner = "` + peerAddress(0x0b) + `"

[messaging]
PeerURL = "http://peer:8080"
NativeFeeWei = "100000000000000000000"
OutboxFlushSecs = 3

[yield]
Enabled = true
YieldBps = 400
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 2, cfg.PeerChainID)
	require.Equal(t, byte(0x0b), cfg.PeerSignerRaw()[0])
	fees, err := cfg.Messaging.Fees()
	require.NoError(t, err)
	require.Equal(t, "100000000000000000000", fees.Native.String())
	require.Zero(t, fees.Token.Sign())
	require.Equal(t, "file:"+filepath.Join("./data", "events.db"), cfg.Journal.DSN)
	require.True(t, cfg.Yield.Enabled)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ChainID = 1\nUnexpected = \"x\"\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"missing chain":       {},
		"peer equals chain":   {ChainID: 1, PeerChainID: 1},
		"peer without signer": {ChainID: 1, PeerChainID: 2},
		"bad custody":         {ChainID: 1, Custody: "not-an-address"},
		"negative fee":        {ChainID: 1, Messaging: Messaging{NativeFeeWei: "-1"}},
		"yield above max":     {ChainID: 1, Yield: Yield{YieldBps: 10_001}},
	}
	for name, cfg := range cases {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			require.Error(t, cfg.Validate())
		})
	}
	ok := Config{ChainID: 1, PeerChainID: 2, PeerSigner: peerAddress(1)}
	require.NoError(t, ok.Validate())
}
