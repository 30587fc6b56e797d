package models

import "fmt"

// HardFork is a versioned consensus ruleset.
type HardFork uint8

const (
	HardForkV1 HardFork = iota + 1
	HardForkV2
	HardForkV3
	HardForkV4
	HardForkV5
	HardForkV6
	HardForkV7
	HardForkV8
	HardForkV9
	HardForkV10
	HardForkV11
	HardForkV12
	HardForkV13
	HardForkV14
	HardForkV15
	HardForkV16
)

// LatestHardFork is the newest ruleset this module knows about.
const LatestHardFork = HardForkV16

// Valid reports whether hf is a known ruleset.
func (hf HardFork) Valid() bool {
	return hf >= HardForkV1 && hf <= LatestHardFork
}

func (hf HardFork) String() string {
	return fmt.Sprintf("v%d", uint8(hf))
}
