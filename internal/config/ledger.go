package config

import (
	"os"
	"strconv"
	"time"
)

// LedgerConfig holds the ledger engine constants. The transfer description
// tokens are load-bearing: reversal correlates the two legs of a transfer by
// parsing them back out of the description, so they must match what transfer
// creation writes.
type LedgerConfig struct {
	TransferToToken     string
	TransferFromToken   string
	ReversalMatchWindow time.Duration
	DefaultBranch       string
	AccountNumberLength int
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		TransferToToken:     getEnv("LEDGER_TRANSFER_TO_TOKEN", "Transfer to "),
		TransferFromToken:   getEnv("LEDGER_TRANSFER_FROM_TOKEN", "Transfer from "),
		ReversalMatchWindow: getEnvAsDuration("LEDGER_REVERSAL_MATCH_WINDOW", 10*time.Second),
		DefaultBranch:       getEnv("LEDGER_DEFAULT_BRANCH", "0001"),
		AccountNumberLength: getEnvAsInt("LEDGER_ACCOUNT_NUMBER_LENGTH", 10),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
