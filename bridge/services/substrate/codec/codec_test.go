/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package codec

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	spec      uint32
	metadatas int
	fail      bool
}

func (f *fakeCaller) Call(_ context.Context, result any, method string, params ...any) error {
	if f.fail {
		return errors.New("node unavailable")
	}
	switch method {
	case "state_getRuntimeVersion":
		*(result.(*RuntimeVersion)) = RuntimeVersion{SpecName: "sora-substrate", SpecVersion: f.spec}
	case "state_getMetadata":
		f.metadatas++
		*(result.(*string)) = "0x6d657461"
	}
	return nil
}

type fakeDecoder struct{}

func (fakeDecoder) DecodeMetadata(specVersion uint32, raw string) (*Metadata, error) {
	return NewMetadata(specVersion, raw), nil
}
func (fakeDecoder) DecodeExtrinsic(*Metadata, string) (*Extrinsic, error) { return nil, nil }
func (fakeDecoder) DecodeEvents(*Metadata, string) ([]*Event, error)      { return nil, nil }

func TestMetadataProviderCachesPerSpecVersion(t *testing.T) {
	caller := &fakeCaller{spec: 33}
	p, err := NewMetadataProvider(caller, fakeDecoder{})
	require.NoError(t, err)
	defer p.Close()

	md, err := p.Metadata(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, uint32(33), md.SpecVersion)
	_, err = p.Metadata(context.Background(), "0x02")
	require.NoError(t, err)
	assert.Equal(t, 1, caller.metadatas)

	caller.spec = 34
	md, err = p.Metadata(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, uint32(34), md.SpecVersion)
	assert.Equal(t, 2, caller.metadatas)

	caller.fail = true
	_, err = p.Metadata(context.Background(), "0x03")
	assert.ErrorContains(t, err, "node unavailable")
}

func TestScaleDecoderRejectsForeignMetadata(t *testing.T) {
	d := NewScaleDecoder()
	_, err := d.DecodeExtrinsic(NewMetadata(1, "not scale metadata"), "0x00")
	assert.Error(t, err)
	_, err = d.DecodeEvents(NewMetadata(1, nil), "0x00")
	assert.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	value := []map[string]any{{
		"phase":         0,
		"extrinsic_idx": 2,
		"module_id":     "System",
		"event_id":      "ExtrinsicSuccess",
		"params":        []map[string]any{{"type": "Balance", "value": "1000000000000000000000"}},
	}}
	var records []rawEvent
	require.NoError(t, decodeValue(value, &records))
	require.Len(t, records, 1)
	assert.Equal(t, uint32(2), records[0].ExtrinsicIdx)
	assert.Equal(t, "ExtrinsicSuccess", records[0].EventID)
	n, ok := AsBigInt(records[0].Params[0].Value)
	require.True(t, ok)
	expected, _ := new(big.Int).SetString("1000000000000000000000", 10)
	assert.Equal(t, expected, n)
}

func TestValueHelpers(t *testing.T) {
	assert.Equal(t, "0xab", AsString(map[string]any{"Id": "0xab"}))
	assert.Equal(t, "0x0102", AsString([]any{json.Number("1"), json.Number("2")}))
	assert.Equal(t, "12", AsString(json.Number("12")))
	assert.Equal(t, "", AsString(nil))

	n, ok := AsBigInt("0x10")
	require.True(t, ok)
	assert.Equal(t, big.NewInt(16), n)
	n, ok = AsBigInt("5.000")
	require.True(t, ok)
	assert.Equal(t, big.NewInt(5), n)
	_, ok = AsBigInt("5.5")
	assert.False(t, ok)
	n, ok = AsBigInt(map[string]any{"value": json.Number("7")})
	require.True(t, ok)
	assert.Equal(t, big.NewInt(7), n)

	assert.Equal(t, "0xabcd", NormalizeAccountID("ABCD"))
	assert.Equal(t, "", NormalizeAccountID("0x"))

	call := Call{Module: "Assets", Function: "transfer", Params: []Param{{Name: "amount", Value: "1"}}}
	assert.True(t, call.Is("assets", "TRANSFER"))
	assert.Equal(t, "Assets.transfer", call.Path())
	v, ok := call.Param("amount")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}
