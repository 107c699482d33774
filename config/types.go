package config

// Messaging prices snapshot delivery to the peer chain. Amounts are decimal
// wei strings so they survive TOML's int64 limit.
type Messaging struct {
	PeerURL         string `toml:"PeerURL"`
	NativeFeeWei    string `toml:"NativeFeeWei"`
	TokenFee        string `toml:"TokenFee"`
	TimeoutSeconds  uint32 `toml:"TimeoutSeconds"`
	OutboxFlushSecs uint32 `toml:"OutboxFlushSecs"`
}

// Oracle bounds how old a pushed price may be before deposits refuse it.
type Oracle struct {
	MaxAgeSeconds uint32 `toml:"MaxAgeSeconds"`
}

// Yield enables the in-process yield adapter for ABOND backing.
type Yield struct {
	Enabled  bool   `toml:"Enabled"`
	YieldBps uint64 `toml:"YieldBps"`
}

// Journal points at the SQL event journal.
type Journal struct {
	DSN string `toml:"DSN"`
}
