package core

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// SeedEnv names the environment variable holding a fixed random seed.
const SeedEnv = "HNSW_SEED"

// GetSeed receives a seed value for random number generation from the HNSW_SEED environment variable.
func GetSeed() int64 {
	seedStr := os.Getenv(SeedEnv)
	if seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			log.Debug().Msgf("Using seed from %s value: %d", SeedEnv, seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse %s value: %s", SeedEnv, seedStr)
	}

	seed := time.Now().UnixNano()
	log.Debug().Msgf("Using current time as seed: %d", seed)
	return seed
}
