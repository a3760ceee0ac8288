package runtime

import (
	"github.com/wippyai/lua-runtime/errors"
)

// AttrFilter vets every attribute access on wrapped host objects. It
// receives the object, the requested name and whether the access is a
// write, and returns the (possibly renamed) attribute to use. Returning
// an error denies the access; the denial surfaces as a Lua error at the
// access site.
type AttrFilter func(obj any, name string, isSet bool) (string, error)

// AttrGetter replaces reflective attribute lookup entirely. Returning
// errors.ErrAttributeAbsent maps to the Lua missing-field idiom (the
// access yields nil); any other error denies the access.
type AttrGetter func(obj any, name string) (any, error)

// AttrSetter replaces reflective attribute assignment entirely. The
// setter may silently refuse by returning nil without storing anything.
type AttrSetter func(obj any, name string, value any) error

// attrPolicy is the resolved policy set of one session. A filter and a
// handler pair are mutually exclusive; the combination is rejected at
// session construction, never discovered mid-access.
type attrPolicy struct {
	filter AttrFilter
	getter AttrGetter
	setter AttrSetter
}

func newAttrPolicy(filter AttrFilter, getter AttrGetter, setter AttrSetter) (attrPolicy, error) {
	if filter != nil && (getter != nil || setter != nil) {
		return attrPolicy{}, errors.Config("attribute filter and attribute handlers are mutually exclusive")
	}
	return attrPolicy{filter: filter, getter: getter, setter: setter}, nil
}
