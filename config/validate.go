package config

import (
	"fmt"
	"strings"

	"yieldsplit/native/common"
	"yieldsplit/native/oracle"
	"yieldsplit/storage"
)

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if !isPowerOfTen(c.Series.Scale) {
		return fmt.Errorf("series: Scale %d must be a power of ten >= 10", c.Series.Scale)
	}
	if c.Series.Maturity == 0 && c.Series.MaturitySeconds == 0 {
		return fmt.Errorf("series: one of Maturity or MaturitySeconds is required")
	}
	if c.Series.AutoRollover && c.Series.MaturitySeconds == 0 {
		return fmt.Errorf("series: AutoRollover requires MaturitySeconds")
	}
	if c.Series.Decimals > common.MaxDecimals {
		return fmt.Errorf("series: Decimals %d exceeds %d", c.Series.Decimals, common.MaxDecimals)
	}
	if _, err := oracle.ParseVaultKind(c.Vault.Kind); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "", storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("StorageBackend %q is not one of leveldb, bolt, memory", c.StorageBackend)
	}
	if strings.TrimSpace(c.DataDir) == "" && !strings.EqualFold(c.StorageBackend, storage.BackendMemory) {
		return fmt.Errorf("DataDir is required")
	}
	return nil
}

func isPowerOfTen(v uint64) bool {
	if v < 10 {
		return false
	}
	for v%10 == 0 {
		v /= 10
	}
	return v == 1
}
