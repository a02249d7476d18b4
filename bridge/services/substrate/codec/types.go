/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package codec

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Phase of the block an event was emitted in
type Phase int

const (
	ApplyExtrinsic Phase = iota
	Finalization
	Initialization
)

// Param is a decoded call or event argument.
// Value holds strings, json.Number, bool, []any or map[string]any.
type Param struct {
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type Call struct {
	Module   string  `json:"module"`
	Function string  `json:"function"`
	Params   []Param `json:"params"`
}

// Path returns Module.function
func (c *Call) Path() string {
	return c.Module + "." + c.Function
}

// Is compares module and function ignoring case
func (c *Call) Is(module, function string) bool {
	return strings.EqualFold(c.Module, module) && strings.EqualFold(c.Function, function)
}

// Param returns the argument with the given name
func (c *Call) Param(name string) (any, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

type Extrinsic struct {
	// Hash is the blake2-256 of the encoded extrinsic, hex with 0x prefix
	Hash string
	// Signer is the hex account id of the signer, empty for unsigned extrinsics
	Signer string
	Nonce  uint64
	Call   Call
}

func (e *Extrinsic) Signed() bool {
	return len(e.Signer) != 0
}

type Event struct {
	Phase          Phase
	ExtrinsicIndex uint32
	Module         string
	Name           string
	Params         []Param
}

func (e *Event) Is(module, name string) bool {
	return strings.EqualFold(e.Module, module) && strings.EqualFold(e.Name, name)
}

// Arg returns the i-th parameter value
func (e *Event) Arg(i int) (any, bool) {
	if i < 0 || i >= len(e.Params) {
		return nil, false
	}
	return e.Params[i].Value, true
}

// Metadata is the runtime metadata of a spec version
type Metadata struct {
	SpecVersion uint32
	raw         any
}

// NewMetadata wraps decoded metadata
func NewMetadata(specVersion uint32, raw any) *Metadata {
	return &Metadata{SpecVersion: specVersion, raw: raw}
}

// Decoder decodes chain data against runtime metadata
type Decoder interface {
	DecodeMetadata(specVersion uint32, raw string) (*Metadata, error)
	DecodeExtrinsic(md *Metadata, raw string) (*Extrinsic, error)
	DecodeEvents(md *Metadata, raw string) ([]*Event, error)
}

// AsString renders a decoded value as a string: hex ids, addresses and numbers
// are returned as is, {"Id": v} style enums are unwrapped
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case map[string]any:
		for _, k := range []string{"Id", "id", "code", "AccountId"} {
			if inner, ok := t[k]; ok {
				return AsString(inner)
			}
		}
		if len(t) == 1 {
			for _, inner := range t {
				return AsString(inner)
			}
		}
		return ""
	case []any:
		// [u8; 32] decoded as a list of numbers
		b := make([]byte, 0, len(t))
		for _, e := range t {
			n, ok := AsBigInt(e)
			if !ok || !n.IsUint64() || n.Uint64() > 255 {
				return ""
			}
			b = append(b, byte(n.Uint64()))
		}
		return fmt.Sprintf("0x%x", b)
	default:
		return fmt.Sprint(t)
	}
}

// AsBigInt converts numbers, decimal strings and hex strings to a big.Int
func AsBigInt(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case json.Number:
		return parseBigInt(t.String())
	case string:
		return parseBigInt(t)
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return nil, false
		}
		return new(big.Int).SetUint64(uint64(t)), true
	case int:
		return big.NewInt(int64(t)), true
	case int64:
		return big.NewInt(t), true
	case uint64:
		return new(big.Int).SetUint64(t), true
	case map[string]any:
		if len(t) == 1 {
			for _, inner := range t {
				return AsBigInt(inner)
			}
		}
	}
	return nil, false
}

func parseBigInt(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		// decimals rendered with a zero fraction
		if strings.Trim(s[i+1:], "0") != "" {
			return nil, false
		}
		s = s[:i]
	}
	return new(big.Int).SetString(s, 10)
}

// NormalizeAccountID lower cases a hex account id and adds the 0x prefix
func NormalizeAccountID(s string) string {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if len(s) == 0 {
		return ""
	}
	return "0x" + s
}
