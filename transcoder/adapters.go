package transcoder

import (
	"math"
	"math/big"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// Wrapped forces a specific host protocol onto a value crossing into Lua,
// overriding the capability detection performed at wrap time.
type Wrapped struct {
	Value    any
	Protocol resource.Protocol
}

// AsFunction exposes v to Lua through the call protocol only.
func AsFunction(v any) Wrapped {
	return Wrapped{Value: v, Protocol: resource.ProtocolCall}
}

// AsItemGetter exposes v to Lua through item get/set only.
func AsItemGetter(v any) Wrapped {
	return Wrapped{Value: v, Protocol: resource.ProtocolItem}
}

// AsAttrGetter exposes v to Lua through attribute get/set only.
func AsAttrGetter(v any) Wrapped {
	return Wrapped{Value: v, Protocol: resource.ProtocolAttr}
}

// ToFloat is the canonical overflow handler: it maps an oversized integer
// to the nearest float. Magnitudes beyond the float range still fail, so
// installing this handler narrows the overflow window without hiding
// genuine overflow.
func ToFloat(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		if math.IsInf(f, 0) {
			return nil, errors.Overflow(errors.PhaseEncode, x, "float64")
		}
		return f, nil
	case int:
		return float64(x), nil
	case uint:
		return float64(x), nil
	}
	return nil, errors.New(errors.PhaseEncode, errors.KindOverflow).
		Value(v).Detail("unsupported overflow input").Build()
}
