package cfrealip

import (
	"fmt"
	"reflect"
)

func (c *config) validate() error {
	if isNilInterface(c.ranges) {
		return fmt.Errorf("range provider cannot be nil")
	}
	if isNilInterface(c.logger) {
		return fmt.Errorf("logger cannot be nil")
	}
	if isNilInterface(c.metrics) {
		return fmt.Errorf("metrics cannot be nil")
	}
	return nil
}

func isNilInterface(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
