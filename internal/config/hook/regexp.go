package hook

import (
	"reflect"
	"regexp"

	"github.com/mitchellh/mapstructure"
)

var (
	regexpType = reflect.TypeOf(&regexp.Regexp{})
)

// Regexp compiles patterns; an empty pattern decodes to nil rather than a match-all expression.
func Regexp() mapstructure.DecodeHookFuncType {
	return func(in reflect.Type, out reflect.Type, val interface{}) (interface{}, error) {
		if in.Kind() == reflect.String && out == regexpType {
			if val.(string) == "" {
				return (*regexp.Regexp)(nil), nil
			}
			return regexp.Compile(val.(string))
		}
		return val, nil
	}
}
