package config

// Series holds the constants every deployed maturity series shares.
type Series struct {
	// Scale is the fixed-point scale of exchange rates. It is fixed per
	// deployment and must be a power of ten.
	Scale           uint64 `toml:"Scale"`
	Maturity        uint64 `toml:"Maturity"`
	MaturitySeconds uint64 `toml:"MaturitySeconds"`
	Decimals        uint32 `toml:"Decimals"`
	PrincipalName   string `toml:"PrincipalName"`
	PrincipalSymbol string `toml:"PrincipalSymbol"`
	YieldName       string `toml:"YieldName"`
	YieldSymbol     string `toml:"YieldSymbol"`
	AutoRollover    bool   `toml:"AutoRollover"`
}

// Vault configures the reference vault hosted next to the engine.
type Vault struct {
	Kind        string `toml:"Kind"`
	YieldBps    uint64 `toml:"YieldBps"`
	AssetName   string `toml:"AssetName"`
	AssetSymbol string `toml:"AssetSymbol"`
}
