package sectable

import (
	"encoding/binary"

	"github.com/templexxx/xhex"
)

// All fixed-width integers in sector and archive files are little-endian;
// every writer and reader of a store must agree on this encoding.

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func getU16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }

func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getU32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getU64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

// HexToBin decodes a hex string into bytes. It returns ErrInvalidEncoding
// on odd-length input or any non-hex-digit character.
func HexToBin(s string) ([]byte, error) {
	if len(s) == 0 || len(s)%2 != 0 {
		return nil, ErrInvalidEncoding
	}
	dst := make([]byte, len(s)/2)
	if err := xhex.Decode(dst, []byte(s)); err != nil {
		return nil, ErrInvalidEncoding
	}
	return dst, nil
}

// BinToHex encodes bytes as a lowercase hex string. It is the total
// inverse of HexToBin.
func BinToHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	dst := make([]byte, len(b)*2)
	xhex.Encode(dst, b)
	return string(dst)
}

// prefixKey packs the three key bytes following the sector byte into the
// index lookup key.
func prefixKey(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
