/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package codec

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/utils/cache"
)

const metadataCacheSize = 16

// Caller issues JSON-RPC calls
type Caller interface {
	Call(ctx context.Context, result any, method string, params ...any) error
}

// RuntimeVersion is the result of state_getRuntimeVersion
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

// MetadataProvider returns the runtime metadata in force at a block, decoding each spec version once
type MetadataProvider struct {
	caller  Caller
	decoder Decoder
	cache   *cache.Cache[*Metadata]
}

func NewMetadataProvider(caller Caller, decoder Decoder) (*MetadataProvider, error) {
	c, err := cache.New[*Metadata](metadataCacheSize, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating metadata cache")
	}
	return &MetadataProvider{caller: caller, decoder: decoder, cache: c}, nil
}

// RuntimeVersion returns the runtime version at blockHash, or at the best block if blockHash is empty
func (p *MetadataProvider) RuntimeVersion(ctx context.Context, blockHash string) (*RuntimeVersion, error) {
	var v RuntimeVersion
	var err error
	if len(blockHash) == 0 {
		err = p.caller.Call(ctx, &v, "state_getRuntimeVersion")
	} else {
		err = p.caller.Call(ctx, &v, "state_getRuntimeVersion", blockHash)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed getting runtime version at [%s]", blockHash)
	}
	return &v, nil
}

// Metadata returns the metadata of the runtime at blockHash
func (p *MetadataProvider) Metadata(ctx context.Context, blockHash string) (*Metadata, error) {
	v, err := p.RuntimeVersion(ctx, blockHash)
	if err != nil {
		return nil, err
	}
	md, _, err := p.cache.GetOrLoad(strconv.FormatUint(uint64(v.SpecVersion), 10), func() (*Metadata, error) {
		logger.Infof("loading metadata of spec version [%d]", v.SpecVersion)
		var raw string
		var err error
		if len(blockHash) == 0 {
			err = p.caller.Call(ctx, &raw, "state_getMetadata")
		} else {
			err = p.caller.Call(ctx, &raw, "state_getMetadata", blockHash)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "failed getting metadata at [%s]", blockHash)
		}
		return p.decoder.DecodeMetadata(v.SpecVersion, raw)
	})
	if err != nil {
		return nil, err
	}
	return md, nil
}

func (p *MetadataProvider) Close() {
	p.cache.Close()
}
