// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload does not fit the length byte
var ErrPayloadTooLarge = errors.New("payload too large")

// Encode creates a complete wire-formatted frame:
// header [AA, origin, len, 00, command], the payload, then the CRC of all of
// the above, high byte first.
func Encode(origin Origin, command uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	data := make([]byte, 0, HeaderSize+len(payload)+CRCSize)
	data = append(data, Preamble, byte(origin), byte(len(payload)), 0x00, command)
	data = append(data, payload...)
	return appendCRC(data), nil
}

// MustEncode is like Encode but panics on error. Use it only with payloads
// whose size is known to be valid.
func MustEncode(origin Origin, command uint8, payload []byte) []byte {
	data, err := Encode(origin, command, payload)
	if err != nil {
		panic(fmt.Sprintf("autoterm: encode error: %v", err))
	}
	return data
}
