package hook

import (
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap/zapcore"
)

var (
	levelType = reflect.TypeOf(zapcore.InfoLevel)
)

// Level decodes zap level names. zap has no trace level, so "trace" selects debug.
func Level() mapstructure.DecodeHookFuncType {
	return func(in reflect.Type, out reflect.Type, val interface{}) (interface{}, error) {
		if in.Kind() == reflect.String && out == levelType {
			s := val.(string)
			if strings.EqualFold(s, "trace") {
				return zapcore.DebugLevel, nil
			}
			l := zapcore.InfoLevel
			if err := l.UnmarshalText([]byte(s)); err != nil {
				return nil, err
			}
			return l, nil
		}
		return val, nil
	}
}
