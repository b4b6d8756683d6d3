package hook

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"pkg.mon.icu/oracle/internal/util"
)

var (
	snowflakesType = reflect.TypeOf([]int64{})
)

// Snowflakes decodes lists of decimal or numeric ids, rejecting anything that is not a valid snowflake.
func Snowflakes() mapstructure.DecodeHookFuncType {
	return func(in reflect.Type, out reflect.Type, val interface{}) (interface{}, error) {
		if in.Kind() != reflect.Slice || out != snowflakesType {
			return val, nil
		}
		v := reflect.ValueOf(val)
		raw := make([]string, v.Len())
		for i := range raw {
			raw[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return util.ParseSnowflakes(raw)
	}
}
