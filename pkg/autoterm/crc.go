// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package autoterm

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CalculateCRC computes the CRC-16/Modbus checksum (poly 0xA001 reflected,
// init 0xFFFF) of data.
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// appendCRC appends the checksum of data to data, high byte first.
func appendCRC(data []byte) []byte {
	crc := CalculateCRC(data)
	return append(data, byte(crc>>8), byte(crc))
}
