package hook

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"pkg.mon.icu/oracle/internal/reconcile"
)

var (
	policyType = reflect.TypeOf(reconcile.PolicySync)
)

func Policy() mapstructure.DecodeHookFuncType {
	return func(in reflect.Type, out reflect.Type, val interface{}) (interface{}, error) {
		if in.Kind() == reflect.String && out == policyType {
			return reconcile.ParsePolicy(val.(string))
		}
		return val, nil
	}
}
