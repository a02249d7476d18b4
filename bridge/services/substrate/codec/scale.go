/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package codec

import (
	"bytes"
	"encoding/json"

	scale "github.com/itering/scale.go"
	"github.com/itering/scale.go/types"
	"github.com/itering/scale.go/types/scaleBytes"
	"github.com/itering/scale.go/utiles"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
)

var logger = logging.MustGetLogger("substrate.codec")

type rawParam struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type rawExtrinsic struct {
	AccountID string     `json:"account_id"`
	Nonce     uint64     `json:"nonce"`
	Module    string     `json:"call_module"`
	Function  string     `json:"call_module_function"`
	Params    []rawParam `json:"params"`
}

type rawEvent struct {
	Phase        int        `json:"phase"`
	ExtrinsicIdx uint32     `json:"extrinsic_idx"`
	ModuleID     string     `json:"module_id"`
	EventID      string     `json:"event_id"`
	Params       []rawParam `json:"params"`
}

// ScaleDecoder decodes SCALE encoded data with github.com/itering/scale.go
type ScaleDecoder struct{}

func NewScaleDecoder() *ScaleDecoder {
	return &ScaleDecoder{}
}

func (d *ScaleDecoder) DecodeMetadata(specVersion uint32, raw string) (md *Metadata, err error) {
	defer recoverInto(&err, "metadata")

	m := scale.MetadataDecoder{}
	m.Init(utiles.HexToBytes(raw))
	m.Process()
	metadata := m.Metadata
	return NewMetadata(specVersion, &metadata), nil
}

func (d *ScaleDecoder) option(md *Metadata) (*types.ScaleDecoderOption, error) {
	m, ok := md.raw.(*types.MetadataStruct)
	if !ok || m == nil {
		return nil, errors.Errorf("metadata of spec [%d] was not decoded by the scale decoder", md.SpecVersion)
	}
	return &types.ScaleDecoderOption{Metadata: m, Spec: int(md.SpecVersion)}, nil
}

func (d *ScaleDecoder) DecodeExtrinsic(md *Metadata, raw string) (ext *Extrinsic, err error) {
	defer recoverInto(&err, "extrinsic")

	option, err := d.option(md)
	if err != nil {
		return nil, err
	}
	data := utiles.HexToBytes(raw)
	e := scale.ExtrinsicDecoder{}
	e.Init(scaleBytes.ScaleBytes{Data: data}, option)
	e.Process()

	var r rawExtrinsic
	if err := decodeValue(e.Value, &r); err != nil {
		return nil, errors.WithMessagef(err, "failed decoding extrinsic")
	}
	return &Extrinsic{
		Hash:   keys.Hex(keys.Blake2_256(data)),
		Signer: NormalizeAccountID(r.AccountID),
		Nonce:  r.Nonce,
		Call: Call{
			Module:   r.Module,
			Function: r.Function,
			Params:   toParams(r.Params),
		},
	}, nil
}

func (d *ScaleDecoder) DecodeEvents(md *Metadata, raw string) (evs []*Event, err error) {
	defer recoverInto(&err, "events")

	option, err := d.option(md)
	if err != nil {
		return nil, err
	}
	e := scale.EventsDecoder{}
	e.Init(scaleBytes.ScaleBytes{Data: utiles.HexToBytes(raw)}, option)
	e.Process()

	var records []rawEvent
	if err := decodeValue(e.Value, &records); err != nil {
		return nil, errors.WithMessagef(err, "failed decoding events")
	}
	evs = make([]*Event, len(records))
	for i, r := range records {
		evs[i] = &Event{
			Phase:          Phase(r.Phase),
			ExtrinsicIndex: r.ExtrinsicIdx,
			Module:         r.ModuleID,
			Name:           r.EventID,
			Params:         toParams(r.Params),
		}
	}
	return evs, nil
}

// decodeValue normalizes the decoder output through JSON, keeping numbers exact,
// then maps it onto out
func decodeValue(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed encoding decoded value")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return errors.Wrap(err, "failed normalizing decoded value")
	}
	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return md.Decode(generic)
}

func toParams(raw []rawParam) []Param {
	params := make([]Param, len(raw))
	for i, p := range raw {
		params[i] = Param{Name: p.Name, Type: p.Type, Value: p.Value}
	}
	return params
}

func recoverInto(err *error, what string) {
	if r := recover(); r != nil {
		logger.Debugf("decoder panicked on %s: %v", what, r)
		*err = errors.Errorf("failed decoding %s: %v", what, r)
	}
}
