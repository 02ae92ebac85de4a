package cli

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envConfig carries flag defaults sourced from the process environment.
// Flags always win over environment values; the environment only changes
// what a flag defaults to when it is not given.
type envConfig struct {
	Deploy          bool   // PIPLOCK_DEPLOY
	Dev             bool   // PIPLOCK_DEV
	Method          string // PIPLOCK_METHOD
	PipBin          string // PIPLOCK_PIP_BIN
	NoLockfileWrite bool   // PIPLOCK_NO_LOCKFILE_WRITE
	NoLockfilePrint bool   // PIPLOCK_NO_LOCKFILE_PRINT
}

// loadEnvConfig reads the PIPLOCK_* variables, first merging a .env file from
// the working directory into the environment when one exists. Existing
// process variables are never overridden by the file.
func loadEnvConfig() envConfig {
	_ = godotenv.Load()

	return envConfig{
		Deploy:          envBool("PIPLOCK_DEPLOY"),
		Dev:             envBool("PIPLOCK_DEV"),
		Method:          os.Getenv("PIPLOCK_METHOD"),
		PipBin:          os.Getenv("PIPLOCK_PIP_BIN"),
		NoLockfileWrite: envBool("PIPLOCK_NO_LOCKFILE_WRITE"),
		NoLockfilePrint: envBool("PIPLOCK_NO_LOCKFILE_PRINT"),
	}
}

// envBool interprets the usual truthy spellings; anything else is false.
func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
