/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keys

import (
	"bytes"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	// SoraPrefix is the SS58 address format of SORA
	SoraPrefix uint16 = 69
	// GenericPrefix is the generic substrate address format
	GenericPrefix uint16 = 42

	accountIDLength = 32
	checksumLength  = 2
)

var ss58Context = []byte("SS58PRE")

// EncodeAddress returns the SS58 address of a 32 bytes account id
func EncodeAddress(accountID []byte, prefix uint16) (string, error) {
	if len(accountID) != accountIDLength {
		return "", errors.Errorf("invalid account id length [%d]", len(accountID))
	}
	payload := append(encodePrefix(prefix), accountID...)
	return base58.Encode(append(payload, checksum(payload)...)), nil
}

// DecodeAddress returns the account id and the prefix of an SS58 address
func DecodeAddress(address string) ([]byte, uint16, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "invalid base58 address [%s]", address)
	}
	if len(raw) == 0 {
		return nil, 0, errors.Errorf("empty address")
	}
	prefix, prefixLen, err := decodePrefix(raw)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) != prefixLen+accountIDLength+checksumLength {
		return nil, 0, errors.Errorf("invalid address length [%d]", len(raw))
	}
	payload := raw[:prefixLen+accountIDLength]
	if !bytes.Equal(checksum(payload), raw[len(payload):]) {
		return nil, 0, errors.Errorf("invalid address checksum [%s]", address)
	}
	return append([]byte(nil), raw[prefixLen:prefixLen+accountIDLength]...), prefix, nil
}

// AccountID decodes address and checks it belongs to the expected network
func AccountID(address string, prefix uint16) ([]byte, error) {
	id, p, err := DecodeAddress(address)
	if err != nil {
		return nil, err
	}
	if p != prefix {
		return nil, errors.Errorf("address [%s] has prefix [%d], expected [%d]", address, p, prefix)
	}
	return id, nil
}

func encodePrefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000
	second := byte(prefix>>8) | byte((prefix&0b0000_0000_0000_0011)<<6)
	return []byte{first, second}
}

func decodePrefix(raw []byte) (uint16, int, error) {
	switch {
	case raw[0] < 64:
		return uint16(raw[0]), 1, nil
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, 0, errors.New("truncated address prefix")
		}
		lower := uint16(raw[0]<<2) | uint16(raw[1]>>6)
		upper := uint16(raw[1] & 0b0011_1111)
		return (lower & 0x00ff) | (upper << 8), 2, nil
	default:
		return 0, 0, errors.Errorf("invalid address prefix byte [%d]", raw[0])
	}
}

func checksum(payload []byte) []byte {
	h := blake2b.Sum512(append(append([]byte(nil), ss58Context...), payload...))
	return h[:checksumLength]
}
