// Package normalize rewrites floating-point leaves of arbitrary records.
package normalize

import (
	"math"
	"reflect"
)

// Value rounds x half away from zero to the given number of decimals.
// Rounding an already rounded value is a no-op. Non-finite values are
// returned unchanged.
func Value(x float64, decimals int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow10(decimals)
	r := math.Round(x*p) / p
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return x
	}
	return r
}

// Round rounds every float in v, which should be a pointer, a map or a slice
// so the leaves can be updated in place. It returns the number of leaves
// that changed.
func Round(v any, decimals int) int {
	return Apply(v, func(x float64) float64 { return Value(x, decimals) })
}

// Apply replaces every float32 and float64 leaf reachable from v with
// fn(leaf). Structs, pointers, slices, arrays, maps and interfaces are
// followed; unexported struct fields are left alone.
func Apply(v any, fn func(float64) float64) int {
	if v == nil {
		return 0
	}
	return walk(reflect.ValueOf(v), fn)
}

func walk(v reflect.Value, fn func(float64) float64) int {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		if !v.CanSet() {
			return 0
		}
		x := v.Float()
		y := fn(x)
		if y == x || (math.IsNaN(x) && math.IsNaN(y)) {
			return 0
		}
		if v.Kind() == reflect.Float32 && float32(y) == float32(x) {
			return 0
		}
		v.SetFloat(y)
		return 1

	case reflect.Pointer:
		if v.IsNil() {
			return 0
		}
		return walk(v.Elem(), fn)

	case reflect.Interface:
		if v.IsNil() {
			return 0
		}
		e := v.Elem()
		switch e.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice:
			return walk(e, fn)
		}
		if !v.CanSet() {
			return 0
		}
		// values held in an interface are not addressable; work on a copy
		cp := reflect.New(e.Type()).Elem()
		cp.Set(e)
		n := walk(cp, fn)
		if n > 0 {
			v.Set(cp)
		}
		return n

	case reflect.Struct:
		n := 0
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				n += walk(v.Field(i), fn)
			}
		}
		return n

	case reflect.Slice, reflect.Array:
		n := 0
		for i := 0; i < v.Len(); i++ {
			n += walk(v.Index(i), fn)
		}
		return n

	case reflect.Map:
		n := 0
		iter := v.MapRange()
		for iter.Next() {
			cp := reflect.New(v.Type().Elem()).Elem()
			cp.Set(iter.Value())
			if c := walk(cp, fn); c > 0 {
				v.SetMapIndex(iter.Key(), cp)
				n += c
			}
		}
		return n
	}
	return 0
}
