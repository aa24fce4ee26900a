package internal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golem-base/golemsql"
)

// Value codec: pure, deterministic mappings between SQL scalar values
// and the store's annotation representations. The store ranks numeric
// annotations by u64 order and string annotations by byte order, so
// every indexable type encodes to a representation whose native order
// agrees with SQL order.

const signBit = uint64(1) << 63

// EncodeInt64 maps a signed value onto u64 so that signed order and
// unsigned order agree. Zero maps to 0x8000_0000_0000_0000.
func EncodeInt64(v int64) uint64 {
	return uint64(v) ^ signBit
}

// DecodeInt64 is the inverse of EncodeInt64.
func DecodeInt64(u uint64) int64 {
	return int64(u ^ signBit)
}

// CheckIntRange validates v against the declared width before
// encoding. The encoding itself is width-independent.
func CheckIntRange(v int64, width int) error {
	var lo, hi int64
	switch width {
	case 8:
		lo, hi = math.MinInt8, math.MaxInt8
	case 16:
		lo, hi = math.MinInt16, math.MaxInt16
	case 32:
		lo, hi = math.MinInt32, math.MaxInt32
	case 64:
		return nil
	default:
		return golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant, "unsupported integer width %d", width)
	}
	if v < lo || v > hi {
		return golemsql.NewDataError(golemsql.ErrCodeValueOutOfRange,
			"value %d out of range for %d-bit integer", v, width)
	}
	return nil
}

// EncodeBool maps true to 1 and false to 0.
func EncodeBool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// EncodeDateTime maps a timestamp to Unix epoch seconds. Pre-epoch
// values are not representable as u64 annotations and are rejected.
func EncodeDateTime(t time.Time) (uint64, error) {
	secs := t.Unix()
	if secs < 0 {
		return 0, golemsql.NewDataError(golemsql.ErrCodePreEpoch,
			"datetime %s precedes 1970-01-01T00:00:00Z", t.UTC().Format(time.RFC3339))
	}
	return uint64(secs), nil
}

// DecodeDateTime is the inverse of EncodeDateTime.
func DecodeDateTime(u uint64) time.Time {
	return time.Unix(int64(u), 0).UTC()
}

// CheckVarCharLength enforces the declared character limit. The limit
// counts runes, not bytes.
func CheckVarCharLength(s string, limit int) error {
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		return golemsql.NewDataError(golemsql.ErrCodeValueTooLong,
			"string of %d characters exceeds VARCHAR(%d)", utf8.RuneCountInString(s), limit)
	}
	return nil
}

// EncodedValue is an annotation-ready value: either a u64 for the
// numeric map or a string for the string map.
type EncodedValue struct {
	IsNumeric bool
	Numeric   uint64
	Str       string
}

// EncodeColumnValue encodes an already-coerced canonical value (see
// CoerceValue) into its annotation representation. Payload-only types
// have no annotation form.
func EncodeColumnValue(col *golemsql.Column, v any) (EncodedValue, error) {
	switch col.Type {
	case golemsql.TypeTinyInt, golemsql.TypeSmallInt, golemsql.TypeInteger, golemsql.TypeBigInt:
		n, ok := v.(int64)
		if !ok {
			return EncodedValue{}, codecMismatch(col, v)
		}
		if err := CheckIntRange(n, col.Type.IntWidth()); err != nil {
			return EncodedValue{}, err
		}
		return EncodedValue{IsNumeric: true, Numeric: EncodeInt64(n)}, nil

	case golemsql.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return EncodedValue{}, codecMismatch(col, v)
		}
		return EncodedValue{IsNumeric: true, Numeric: EncodeBool(b)}, nil

	case golemsql.TypeDateTime, golemsql.TypeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return EncodedValue{}, codecMismatch(col, v)
		}
		u, err := EncodeDateTime(t)
		if err != nil {
			return EncodedValue{}, err
		}
		return EncodedValue{IsNumeric: true, Numeric: u}, nil

	case golemsql.TypeVarChar, golemsql.TypeChar, golemsql.TypeText:
		s, ok := v.(string)
		if !ok {
			return EncodedValue{}, codecMismatch(col, v)
		}
		return EncodedValue{Str: s}, nil

	case golemsql.TypeDecimal, golemsql.TypeNumeric:
		s, ok := v.(string)
		if !ok {
			return EncodedValue{}, codecMismatch(col, v)
		}
		enc, err := EncodeDecimal(s, col.Precision, col.Scale)
		if err != nil {
			return EncodedValue{}, err
		}
		return EncodedValue{Str: enc}, nil
	}
	return EncodedValue{}, golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant,
		"no annotation encoding for type %s", col.Type)
}

func codecMismatch(col *golemsql.Column, v any) error {
	return golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant,
		"column %s: canonical value has type %T, want %s", col.Name, v, col.Type)
}

// CoerceValue converts a loosely typed input (SQL literal, bound
// parameter, or decoded JSON) into the canonical Go value for the
// column type: int64, bool, time.Time, string, float64, or []byte.
// nil passes through; nullability is the analyzer's concern.
func CoerceValue(col *golemsql.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch col.Type {
	case golemsql.TypeTinyInt, golemsql.TypeSmallInt, golemsql.TypeInteger, golemsql.TypeBigInt:
		n, err := toInt64Value(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		if err := CheckIntRange(n, col.Type.IntWidth()); err != nil {
			return nil, err
		}
		return n, nil

	case golemsql.TypeBoolean:
		b, err := toBoolValue(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		return b, nil

	case golemsql.TypeDateTime, golemsql.TypeTimestamp:
		t, err := toTimeValue(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		if t.Unix() < 0 {
			return nil, golemsql.NewDataError(golemsql.ErrCodePreEpoch,
				"datetime %s precedes 1970-01-01T00:00:00Z", t.UTC().Format(time.RFC3339)).WithColumn(col.Name)
		}
		return t.UTC().Truncate(time.Second), nil

	case golemsql.TypeVarChar, golemsql.TypeChar:
		s, err := toStringValue(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		if err := CheckVarCharLength(s, col.Length); err != nil {
			return nil, err
		}
		return s, nil

	case golemsql.TypeText:
		s, err := toStringValue(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		return s, nil

	case golemsql.TypeDecimal, golemsql.TypeNumeric:
		s, err := toDecimalString(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		norm, err := NormalizeDecimal(s, col.Precision, col.Scale)
		if err != nil {
			return nil, err
		}
		return norm, nil

	case golemsql.TypeFloat, golemsql.TypeDouble, golemsql.TypeReal:
		f, err := toFloat64Value(v)
		if err != nil {
			return nil, typeError(col, v, err)
		}
		return f, nil

	case golemsql.TypeBlob, golemsql.TypeVarBinary:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, typeError(col, v, fmt.Errorf("cannot convert %T to bytes", v))
	}
	return nil, golemsql.NewInternalError(golemsql.ErrCodeCodecInvariant, "unknown column type %s", col.Type)
}

func typeError(col *golemsql.Column, v any, cause error) error {
	return golemsql.NewDataError(golemsql.ErrCodeBadValue,
		"value %v does not fit %s", v, col.Type).WithColumn(col.Name).WithCause(cause)
}

func toInt64Value(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v has a fractional part", n)
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v overflows int64", n)
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse integer %q: %w", n, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func toBoolValue(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, fmt.Errorf("parse boolean %q", b)
	}
	return false, fmt.Errorf("cannot convert %T to boolean", v)
}

// datetimeLayouts accepted for string timestamps, tried in order.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTimeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range datetimeLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return parsed, nil
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse datetime %q", t)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to datetime", v)
}

func toStringValue(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

func toFloat64Value(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	case int64:
		return float64(f), nil
	case int:
		return float64(f), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, fmt.Errorf("parse float %q: %w", f, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func toDecimalString(v any) (string, error) {
	switch d := v.(type) {
	case string:
		return strings.TrimSpace(d), nil
	case int64:
		return strconv.FormatInt(d, 10), nil
	case int:
		return strconv.Itoa(d), nil
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("cannot convert %T to decimal", v)
}
