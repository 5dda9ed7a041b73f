package chain

import (
	"encoding/json"
	"strconv"
)

// CadenceValue is a JSON-Cadence encoded value.
type CadenceValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func cadence(typ string, v any) CadenceValue {
	b, _ := json.Marshal(v)
	return CadenceValue{Type: typ, Value: b}
}

func CadenceString(s string) CadenceValue { return cadence("String", s) }

func CadenceAddress(a string) CadenceValue { return cadence("Address", FlowAddress(a)) }

// CadenceInt encodes n as Int; JSON-Cadence carries integers as decimal strings.
func CadenceInt(n int) CadenceValue { return cadence("Int", strconv.Itoa(n)) }

func CadenceArray(vs ...CadenceValue) CadenceValue {
	if vs == nil {
		vs = []CadenceValue{}
	}
	return cadence("Array", vs)
}

// Bool decodes a Bool result.
func (v CadenceValue) Bool() (bool, bool) {
	if v.Type != "Bool" {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v.Value, &b); err != nil {
		return false, false
	}
	return b, true
}
