// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ems

// crcTable maps a register state to its state after one shift step.
var crcTable = buildCRCTable()

// crcShift advances the register by a single bit position, feeding back the
// polynomial and rotating the top bit into bit 0 when it was set.
func crcShift(crc byte) byte {
	if crc&0x80 != 0 {
		return (crc^crcPolynomial)<<1 | 0x01
	}
	return crc << 1
}

func buildCRCTable() [256]byte {
	var table [256]byte
	for i := range table {
		table[i] = crcShift(byte(i))
	}
	return table
}

// CRC8 calculates the bus checksum over data.
//
// For every input byte the register shifts once, then the byte is XORed in.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crcTable[crc] ^ b
	}
	return crc
}

// CRC8Range calculates the bus checksum over data[from:to].
func CRC8Range(data []byte, from, to int) byte {
	return CRC8(data[from:to])
}

// crc8Serial is the bit-serial form the table is built from.
func crc8Serial(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crcShift(crc) ^ b
	}
	return crc
}
