package core

import (
	"strconv"
	"testing"
)

func TestGetSeedFromEnv(t *testing.T) {
	expectedSeed := int64(12345)
	t.Setenv(SeedEnv, strconv.FormatInt(expectedSeed, 10))

	seed := GetSeed()
	if seed != expectedSeed {
		t.Errorf("GetSeed() = %d; want %d", seed, expectedSeed)
	}
}

func TestGetSeedIgnoresGarbage(t *testing.T) {
	t.Setenv(SeedEnv, "not-a-number")
	if GetSeed() == 0 {
		t.Error("GetSeed() should fall back to a time based seed")
	}
}
