/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keys

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceHex = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

func TestTwox128(t *testing.T) {
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7", hex.EncodeToString(Twox128([]byte("System"))))
	assert.Equal(t, "b99d880ec681799c0cf30e8886371da9", hex.EncodeToString(Twox128([]byte("Account"))))
	assert.Equal(t, "80d41e5e16056765bc8461851072c9d7", hex.EncodeToString(Twox128([]byte("Events"))))
	assert.Equal(t, "02a5c1b19ab7a04f536c519aca4983ac", hex.EncodeToString(Twox128([]byte("Number"))))
}

func TestStorageKeys(t *testing.T) {
	assert.Equal(t, "0x26aa394eea5630e07c48ae0c9558cef780d41e5e16056765bc8461851072c9d7", Hex(SystemEvents))
	assert.Equal(t, "0x26aa394eea5630e07c48ae0c9558cef702a5c1b19ab7a04f536c519aca4983ac", Hex(SystemNumber))

	alice, err := hex.DecodeString(aliceHex)
	require.NoError(t, err)
	key := SystemAccount(alice)
	assert.Len(t, key, 32+16+32)
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9", hex.EncodeToString(key[:32]))
	assert.Equal(t, Blake2_128(alice), key[32:48])
	assert.Equal(t, alice, key[48:])

	assert.Len(t, Twox64Concat([]byte{1, 2}), 10)
	assert.Equal(t, []byte{1, 2}, Identity([]byte{1, 2}))
	assert.Len(t, Blake2_256(nil), 32)
	assert.Len(t, Twox256(nil), 32)
}

func TestHex(t *testing.T) {
	b, err := FromHex("0xAbCd")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, b)
	_, err = FromHex("0xzz")
	assert.Error(t, err)

	assert.True(t, SameKey("0xABCD", "abcd"))
	assert.False(t, SameKey("0xabcd", "0xabce"))
}

func TestSS58(t *testing.T) {
	alice, err := hex.DecodeString(aliceHex)
	require.NoError(t, err)

	address, err := EncodeAddress(alice, GenericPrefix)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", address)

	id, prefix, err := DecodeAddress(address)
	require.NoError(t, err)
	assert.Equal(t, alice, id)
	assert.Equal(t, GenericPrefix, prefix)

	sora, err := EncodeAddress(alice, SoraPrefix)
	require.NoError(t, err)
	assert.Equal(t, "cn", sora[:2])
	id, err = AccountID(sora, SoraPrefix)
	require.NoError(t, err)
	assert.Equal(t, alice, id)

	_, err = AccountID(address, SoraPrefix)
	assert.Error(t, err)

	corrupted := []byte(address)
	corrupted[len(corrupted)-1] = 'Z'
	_, _, err = DecodeAddress(string(corrupted))
	assert.Error(t, err)

	_, err = EncodeAddress([]byte{1}, GenericPrefix)
	assert.Error(t, err)
}
