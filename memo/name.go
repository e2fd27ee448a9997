package memo

import (
	"reflect"
	"runtime"
)

// funcName returns the fully qualified name of fn, e.g.
// "github.com/acme/reports.Load" or "github.com/acme/reports.TestLoad.func1".
func funcName(fn any) string {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(rv.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
