// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"bytes"
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

// randomFrame encodes a frame with random origin, command and payload
func randomFrame(rng *rand.Rand) []byte {
	origins := []Origin{OriginController, OriginHeater}
	payload := make([]byte, rng.Intn(32))
	rng.Read(payload)
	return MustEncode(origins[rng.Intn(2)], uint8(rng.Intn(256)), payload)
}

// referenceCRC is a bitwise CRC-16/Modbus used to cross-check the table
// driven implementation
func referenceCRC(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// ============================================================
// CRC Fuzz Tests
// ============================================================

func TestFuzz_CRCMatchesBitwiseReference(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		data := make([]byte, rng.Intn(300))
		rng.Read(data)
		if got, want := CalculateCRC(data), referenceCRC(data); got != want {
			t.Fatalf("round %d: CRC 0x%04X, reference 0x%04X for % X", i, got, want, data)
		}
	}
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

func TestFuzz_EncodedFramesParse(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		wire := randomFrame(rng)
		frame, n, err := TryParse(wire)
		if err != nil {
			t.Fatalf("round %d: encoded frame failed to parse: %v", i, err)
		}
		if n != len(wire) || !bytes.Equal(frame.Bytes(), wire) {
			t.Fatalf("round %d: parse mismatch", i)
		}
	}
}

func TestFuzz_ByteWiseEqualsWhole(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		var stream []byte
		var expected [][]byte
		for j := 0; j < 1+rng.Intn(4); j++ {
			wire := randomFrame(rng)
			expected = append(expected, wire)
			stream = append(stream, wire...)
		}

		d := NewDecoder()
		var got [][]byte
		for _, b := range stream {
			frame, err := d.DecodeByte(b)
			if err != nil {
				t.Fatalf("round %d: unexpected error %v", i, err)
			}
			if frame != nil {
				got = append(got, frame.Bytes())
			}
		}
		if len(got) != len(expected) {
			t.Fatalf("round %d: expected %d frames, got %d", i, len(expected), len(got))
		}
		for j := range got {
			if !bytes.Equal(got[j], expected[j]) {
				t.Fatalf("round %d frame %d: % X != % X", i, j, got[j], expected[j])
			}
		}
	}
}

func TestFuzz_NoiseThenFrame(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		noise := make([]byte, rng.Intn(64))
		for j := range noise {
			for noise[j] = byte(rng.Intn(256)); noise[j] == Preamble; noise[j] = byte(rng.Intn(256)) {
			}
		}
		wire := randomFrame(rng)

		d := NewDecoder()
		frames := d.Decode(append(noise, wire...), nil)
		if len(frames) != 1 || !bytes.Equal(frames[0].Bytes(), wire) {
			t.Fatalf("round %d: frame after %d noise bytes not recovered", i, len(noise))
		}
	}
}

func TestFuzz_DecoderNeverPanics(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		data := make([]byte, rng.Intn(512))
		rng.Read(data)
		d := NewDecoder()
		for _, f := range d.Decode(data, nil) {
			ValidateFrame(f)
			FormatFrame(f)
		}
	}
}

func TestFuzz_RewriteKeepsFramesValid(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		wire := randomFrame(rng)
		frame, _, _ := TryParse(wire)
		if frame.Length() == 0 {
			continue
		}
		idx := rng.Intn(int(frame.Length()))
		out := frame.Rewrite(idx, byte(rng.Intn(256)))
		if _, _, err := TryParse(out.Bytes()); err != nil {
			t.Fatalf("round %d: rewritten frame invalid: %v", i, err)
		}
	}
}
