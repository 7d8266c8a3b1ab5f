// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

// CalculateCRC computes the SmartAudio CRC8 (polynomial 0xD5, initial 0)
// over the given data
func CalculateCRC(data []byte) byte {
	return updateCRC(0, data)
}

// updateCRC continues a CRC8 computation from a previous accumulator value
func updateCRC(crc byte, data []byte) byte {
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Command frames are checksummed from the first preamble byte, response
// frames from the code byte. Seeding with the preamble CRC lets one receiver
// implementation validate both.
var preambleCRC = CalculateCRC([]byte{Preamble1, Preamble2})
