package query

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Normalize converts a driver value into the JSON-safe domain:
// nil, bool, int64, float64, string, []any, map[string]any.
//
// Arbitrary-precision numbers (big.Rat, big.Float, big.Int, json.Number) become
// float64 here and nowhere else; precision beyond float64 is lost.
// Values already in the domain come back unchanged, so Normalize is idempotent.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, int64, string:
		return x
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return fromUint(uint64(x))
	case uint64:
		return fromUint(x)
	case []byte:
		return bytesToString(x)
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return string(x)
		}
		return finite(f)
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return finite(f)
	case *big.Float:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return finite(f)
	case *big.Int:
		if x == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return finite(f)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case driver.Valuer:
		return normalizeValuer(x)
	}
	return normalizeReflect(reflect.ValueOf(v))
}

// NormalizeColumn applies the column's declared database type before Normalize.
// Text-protocol drivers (MySQL) hand back numbers as []byte and pgx hands back
// NUMERIC as string; those are parsed into int64 or float64.
func NormalizeColumn(dbType string, v any) any {
	var raw string
	switch x := v.(type) {
	case []byte:
		raw = string(x)
	case string:
		raw = x
	default:
		return Normalize(v)
	}

	switch numericKind(dbType) {
	case kindInt:
		if i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return finite(f)
		}
	case kindFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return finite(f)
		}
	}
	return Normalize(v)
}

type columnKind int

const (
	kindOther columnKind = iota
	kindInt
	kindFloat
)

var intTypes = map[string]bool{
	"INT": true, "INTEGER": true, "TINYINT": true, "SMALLINT": true, "MEDIUMINT": true,
	"BIGINT": true, "INT2": true, "INT4": true, "INT8": true, "YEAR": true,
	"SERIAL": true, "BIGSERIAL": true, "SMALLSERIAL": true,
}

var floatTypes = map[string]bool{
	"DECIMAL": true, "NUMERIC": true, "FLOAT": true, "DOUBLE": true, "REAL": true,
	"FLOAT4": true, "FLOAT8": true, "DOUBLE PRECISION": true, "MONEY": true,
}

// numericKind classifies names like "DECIMAL(10,2)" or "UNSIGNED BIGINT".
func numericKind(dbType string) columnKind {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimPrefix(t, "UNSIGNED ")
	t = strings.TrimSuffix(t, " UNSIGNED")
	switch {
	case intTypes[t]:
		return kindInt
	case floatTypes[t]:
		return kindFloat
	default:
		return kindOther
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func fromUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func bytesToString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func normalizeValuer(x driver.Valuer) any {
	if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	val, err := x.Value()
	if err != nil {
		return nil
	}
	// A Valuer returning itself would recurse forever.
	if vv, ok := val.(driver.Valuer); ok && reflect.TypeOf(vv) == reflect.TypeOf(x) {
		return fmt.Sprint(val)
	}
	return Normalize(val)
}

func normalizeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			for i := range b {
				b[i] = byte(rv.Index(i).Uint())
			}
			return bytesToString(b)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	default:
		return fmt.Sprint(rv.Interface())
	}
}
