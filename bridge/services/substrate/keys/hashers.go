/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keys

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Hasher derives the key of a map entry from its encoded argument
type Hasher func(data []byte) []byte

// Twox64Concat hashes data with xxhash64 (seed 0) and appends it
func Twox64Concat(data []byte) []byte {
	return append(twox(data, 1), data...)
}

// Blake2_128Concat hashes data with blake2b-128 and appends it
func Blake2_128Concat(data []byte) []byte {
	return append(Blake2_128(data), data...)
}

// Identity returns data unchanged
func Identity(data []byte) []byte {
	return append([]byte(nil), data...)
}

// Twox128 is xxhash64 with seed 0 followed by xxhash64 with seed 1, little endian
func Twox128(data []byte) []byte {
	return twox(data, 2)
}

func Twox256(data []byte) []byte {
	return twox(data, 4)
}

func Blake2_128(data []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}

func Blake2_256(data []byte) []byte {
	h := blake2b.Sum256(data)
	return h[:]
}

func twox(data []byte, rounds int) []byte {
	out := make([]byte, 0, 8*rounds)
	for seed := 0; seed < rounds; seed++ {
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

// StorageKey returns twox128(module) ++ twox128(item) ++ hasher_i(args_i)...
func StorageKey(module, item string, args ...MapKey) []byte {
	key := append(Twox128([]byte(module)), Twox128([]byte(item))...)
	for _, a := range args {
		key = append(key, a.Hasher(a.Data)...)
	}
	return key
}

// MapKey is one argument of a storage map
type MapKey struct {
	Hasher Hasher
	Data   []byte
}

// Hex encodes b with the 0x prefix
func Hex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// FromHex decodes a hex string with or without the 0x prefix
func FromHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hex [%s]", s)
	}
	return b, nil
}

// SameKey compares two hex keys ignoring case and prefix
func SameKey(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "0x"), strings.TrimPrefix(b, "0x"))
}

var (
	// SystemEvents holds the events of the current block
	SystemEvents = StorageKey("System", "Events")
	SystemNumber = StorageKey("System", "Number")
)

// SystemAccount returns the key of the account info of accountID
func SystemAccount(accountID []byte) []byte {
	return StorageKey("System", "Account", MapKey{Hasher: Blake2_128Concat, Data: accountID})
}
