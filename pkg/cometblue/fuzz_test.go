// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caloric Labs

package cometblue

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzDecodeTemperatures_RandomFrames feeds random 7-byte frames and
// verifies the decoder never panics and never partially adopts a frame
// containing the sentinel.
func TestFuzzDecodeTemperatures_RandomFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := make([]byte, TemperatureTelegramSize)
		rng.Read(data)

		hasSentinel := false
		for _, b := range data {
			if int8(b) == Sentinel {
				hasSentinel = true
			}
		}

		got, err := DecodeTemperatures(data)
		if hasSentinel {
			if err == nil {
				t.Fatalf("round %d: frame % X carries a sentinel and must be rejected", i, data)
			}
			continue
		}
		if err != nil {
			t.Fatalf("round %d: sentinel-free frame % X rejected: %v", i, data, err)
		}
		for _, f := range []*float64{got.CurrentTemp, got.Target, got.TargetLow, got.TargetHigh, got.Offset} {
			if f == nil {
				t.Fatalf("round %d: sentinel-free frame decoded an absent field", i)
			}
		}
	}
}

// TestFuzzTemperatures_EncodeDecodeRoundTrip builds random sparse patches,
// encodes them, fills the read-only slot, and verifies every populated
// field survives.
func TestFuzzTemperatures_EncodeDecodeRoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	// Random representable temperature: a non-sentinel signed byte / 2.
	randTemp := func() *float64 {
		for {
			v := int8(rng.Intn(256) - 128)
			if v == Sentinel {
				continue
			}
			f := float64(v) / 2.0
			return &f
		}
	}
	randSmall := func() *int {
		n := rng.Intn(120) + 1
		return &n
	}

	for i := 0; i < rounds; i++ {
		in := Temperatures{}
		if rng.Intn(2) == 1 {
			in.Target = randTemp()
		}
		if rng.Intn(2) == 1 {
			in.TargetLow = randTemp()
		}
		if rng.Intn(2) == 1 {
			in.TargetHigh = randTemp()
		}
		if rng.Intn(2) == 1 {
			in.Offset = randTemp()
		}
		if rng.Intn(2) == 1 {
			in.WindowOpenDetection = randSmall()
			in.WindowOpenMinutes = randSmall()
		}

		data := EncodeTemperatures(in)
		data[0] = 40 // fill the read-only current slot with 20.0

		sentinelFree := true
		for _, b := range data {
			if int8(b) == Sentinel {
				sentinelFree = false
			}
		}
		if !sentinelFree {
			// Sparse patches with absent fields do not round trip whole;
			// the decode path rejects them by design of the wire format.
			continue
		}

		got, err := DecodeTemperatures(data)
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", i, err)
		}
		if in.Target != nil && *got.Target != *in.Target {
			t.Fatalf("round %d: target %.1f decoded as %.1f", i, *in.Target, *got.Target)
		}
		if in.Offset != nil && *got.Offset != *in.Offset {
			t.Fatalf("round %d: offset %.1f decoded as %.1f", i, *in.Offset, *got.Offset)
		}
		if in.WindowOpenDetection != nil && *got.WindowOpenDetection != *in.WindowOpenDetection {
			t.Fatalf("round %d: detection %d decoded as %d", i, *in.WindowOpenDetection, *got.WindowOpenDetection)
		}
	}
}

// TestFuzzStatus_EncodeDecodeRoundTrip verifies that any combination of
// single-bit flags survives an encode/decode round trip.
func TestFuzzStatus_EncodeDecodeRoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	// installing is excluded: it is the union of three other masks, so
	// decode containment can report it set without it being requested.
	singleBit := []string{
		FlagChildlock, FlagManualMode, FlagAdapting, FlagNotReady,
		FlagMotorMoving, FlagAntifrostActivated, FlagSatisfied,
		FlagLowBattery, FlagUnknown,
	}

	for i := 0; i < rounds; i++ {
		in := make(map[string]bool)
		for _, name := range singleBit {
			if rng.Intn(2) == 1 {
				in[name] = true
			}
		}

		rep, err := DecodeStatus(EncodeStatus(in))
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", i, err)
		}
		for _, name := range singleBit {
			if rep.Flags[name] != in[name] {
				t.Fatalf("round %d: flag %s: wrote %v, read %v", i, name, in[name], rep.Flags[name])
			}
		}
		if rep.UnusedBits != 0 {
			t.Fatalf("round %d: named flags left residual bits 0x%X", i, rep.UnusedBits)
		}
	}
}

// TestFuzzDecodeStatus_RandomWords verifies decode/encode word stability:
// re-encoding the decoded flags of a random word covers exactly the named
// bits of that word.
func TestFuzzDecodeStatus_RandomWords(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		data := make([]byte, StatusTelegramSize)
		rng.Read(data)

		rep, err := DecodeStatus(data)
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", i, err)
		}

		word := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
		if rep.Word != word {
			t.Fatalf("round %d: word 0x%X decoded as 0x%X", i, word, rep.Word)
		}
		if rep.UnusedBits&word != rep.UnusedBits {
			t.Fatalf("round %d: residual bits 0x%X not contained in word 0x%X", i, rep.UnusedBits, word)
		}
	}
}
