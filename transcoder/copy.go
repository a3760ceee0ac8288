package transcoder

import (
	"reflect"

	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
	"github.com/wippyai/lua-runtime/resource"
)

// seenKey identifies a container by object identity, not value equality:
// two references to the same map inside the structure being copied must
// collapse to the same Lua table, and a cycle must not recurse forever.
type seenKey struct {
	ptr  uintptr
	kind reflect.Kind
}

const (
	tableBaseCost  = 64
	tableEntryCost = 32
)

func (t *Transcoder) newTable(entries int) (*lua.LTable, error) {
	if err := t.charge(tableBaseCost + int64(entries)*tableEntryCost); err != nil {
		return nil, err
	}
	return t.L.CreateTable(entries, entries), nil
}

// encodeContainer structurally copies a Go container into a Lua table.
// mode is Shallow or Deep; with Shallow, nested containers are passed by
// reference instead of being copied.
func (t *Transcoder) encodeContainer(rv reflect.Value, mode CopyMode, seen map[seenKey]*lua.LTable) (lua.LValue, error) {
	childMode := mode
	if mode == Shallow {
		childMode = Reference
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return lua.LNil, nil
		}
		key := seenKey{ptr: rv.Pointer(), kind: reflect.Ptr}
		if tbl, ok := seen[key]; ok {
			return tbl, nil
		}
		elem := rv.Elem()
		if elem.Kind() == reflect.Struct {
			tbl, err := t.newTable(elem.NumField())
			if err != nil {
				return nil, err
			}
			seen[key] = tbl
			return tbl, t.fillStruct(tbl, elem, childMode, seen)
		}
		return t.encode(elem.Interface(), mode, true, seen)

	case reflect.Map:
		key := seenKey{ptr: rv.Pointer(), kind: reflect.Map}
		if tbl, ok := seen[key]; ok {
			return tbl, nil
		}
		tbl, err := t.newTable(rv.Len())
		if err != nil {
			return nil, err
		}
		seen[key] = tbl
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().Interface()
			lk, err := t.encodeDeepKey(k, seen)
			if err != nil {
				return nil, err
			}
			lv, err := t.encode(iter.Value().Interface(), childMode, true, seen)
			if err != nil {
				return nil, err
			}
			tbl.RawSet(lk, lv)
		}
		return tbl, nil

	case reflect.Slice:
		key := seenKey{ptr: rv.Pointer(), kind: reflect.Slice}
		if tbl, ok := seen[key]; ok {
			return tbl, nil
		}
		tbl, err := t.newTable(rv.Len())
		if err != nil {
			return nil, err
		}
		seen[key] = tbl
		return tbl, t.fillSequence(tbl, rv, childMode, seen)

	case reflect.Array:
		tbl, err := t.newTable(rv.Len())
		if err != nil {
			return nil, err
		}
		return tbl, t.fillSequence(tbl, rv, childMode, seen)

	case reflect.Struct:
		tbl, err := t.newTable(rv.NumField())
		if err != nil {
			return nil, err
		}
		return tbl, t.fillStruct(tbl, rv, childMode, seen)
	}

	return nil, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
		GoType(rv.Type().String()).
		Detail("container copy not supported").Build()
}

func (t *Transcoder) fillSequence(tbl *lua.LTable, rv reflect.Value, childMode CopyMode, seen map[seenKey]*lua.LTable) error {
	for i := 0; i < rv.Len(); i++ {
		lv, err := t.encode(rv.Index(i).Interface(), childMode, true, seen)
		if err != nil {
			return err
		}
		tbl.RawSetInt(i+1, lv)
	}
	return nil
}

func (t *Transcoder) fillStruct(tbl *lua.LTable, rv reflect.Value, childMode CopyMode, seen map[seenKey]*lua.LTable) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		lv, err := t.encode(rv.Field(i).Interface(), childMode, true, seen)
		if err != nil {
			return err
		}
		tbl.RawSetString(f.Name, lv)
	}
	return nil
}

// encodeDeepKey encodes a map key during structural copy. A nil key maps
// to the session sentinel; container keys are passed by reference since
// Lua tables key on identity.
func (t *Transcoder) encodeDeepKey(k any, seen map[seenKey]*lua.LTable) (lua.LValue, error) {
	if k == nil {
		return t.None, nil
	}
	switch reflect.ValueOf(k).Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Struct, reflect.Array:
		return t.WrapHost(k, resource.ProtocolAuto)
	}
	lv, err := t.encode(k, Reference, true, seen)
	if err != nil {
		return nil, err
	}
	if lv == lua.LNil {
		return nil, errors.BadKey(errors.PhaseEncode, nil, "map key encoded to nil")
	}
	return lv, nil
}
