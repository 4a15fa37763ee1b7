package tree

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StateVarType represents a UPnP state-variable data type, mirroring the
// enumeration in UPnP Device Architecture §2.3.
type StateVarType int

const (
	TypeUnknown StateVarType = iota
	TypeUI1
	TypeUI2
	TypeUI4
	TypeI1
	TypeI2
	TypeI4
	TypeInt
	TypeR4
	TypeR8
	TypeNumber
	TypeFixed14_4
	TypeChar
	TypeString
	TypeBoolean
	TypeBinBase64
	TypeBinHex
	TypeDate
	TypeDateTime
	TypeDateTimeTZ
	TypeTime
	TypeTimeTZ
	TypeUUID
	TypeURI
)

var typeNames = map[string]StateVarType{
	"ui1":         TypeUI1,
	"ui2":         TypeUI2,
	"ui4":         TypeUI4,
	"i1":          TypeI1,
	"i2":          TypeI2,
	"i4":          TypeI4,
	"int":         TypeInt,
	"r4":          TypeR4,
	"r8":          TypeR8,
	"number":      TypeNumber,
	"fixed.14.4":  TypeFixed14_4,
	"char":        TypeChar,
	"string":      TypeString,
	"boolean":     TypeBoolean,
	"bin.base64":  TypeBinBase64,
	"bin.hex":     TypeBinHex,
	"date":        TypeDate,
	"dateTime":    TypeDateTime,
	"dateTime.tz": TypeDateTimeTZ,
	"time":        TypeTime,
	"time.tz":     TypeTimeTZ,
	"uuid":        TypeUUID,
	"uri":         TypeURI,
}

var typeStrings = [...]string{
	"unknown", "ui1", "ui2", "ui4", "i1", "i2", "i4", "int", "r4", "r8",
	"number", "fixed.14.4", "char", "string", "boolean", "bin.base64",
	"bin.hex", "date", "dateTime", "dateTime.tz", "time", "time.tz", "uuid", "uri",
}

func (t StateVarType) String() string {
	if int(t) >= 0 && int(t) < len(typeStrings) {
		return typeStrings[t]
	}
	return "unknown"
}

// ParseStateVarType maps a UPnP SCPD dataType string to a StateVarType.
func ParseStateVarType(s string) (StateVarType, error) {
	if t, ok := typeNames[s]; ok {
		return t, nil
	}
	return TypeUnknown, fmt.Errorf("unknown UPnP data type %q", s)
}

func (t StateVarType) IsNumeric() bool {
	switch t {
	case TypeUI1, TypeUI2, TypeUI4, TypeI1, TypeI2, TypeI4, TypeInt, TypeR4, TypeR8, TypeNumber, TypeFixed14_4:
		return true
	}
	return false
}

// BitSize returns the bit width for the small integer UPnP types, or -1.
func (t StateVarType) BitSize() int {
	switch t {
	case TypeUI1, TypeI1:
		return 8
	case TypeUI2, TypeI2:
		return 16
	case TypeUI4, TypeI4, TypeInt:
		return 32
	case TypeR4:
		return 32
	case TypeR8, TypeNumber:
		return 64
	default:
		return -1
	}
}

// Cast converts an arbitrary Go value into the canonical in-memory
// representation for t, validating that it is representable.
func (t StateVarType) Cast(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, fmt.Errorf("nil is not a valid %s value", t)
	}
	switch t {
	case TypeUI1, TypeUI2, TypeUI4, TypeI1, TypeI2, TypeI4, TypeInt:
		return castInt(t, v)
	case TypeR4, TypeR8, TypeNumber, TypeFixed14_4:
		return castFloat(v)
	case TypeChar:
		return castChar(v)
	case TypeString:
		return fmt.Sprintf("%v", v), nil
	case TypeBoolean:
		return castBool(v)
	case TypeBinBase64, TypeBinHex:
		return castBytes(v)
	case TypeDate, TypeDateTime, TypeDateTimeTZ, TypeTime, TypeTimeTZ:
		return castTime(t, v)
	case TypeUUID:
		return castUUID(v)
	case TypeURI:
		return castURI(v)
	default:
		return nil, fmt.Errorf("cannot cast to unknown type")
	}
}

func castInt(t StateVarType, v interface{}) (interface{}, error) {
	var i64 int64
	switch n := v.(type) {
	case int:
		i64 = int64(n)
	case int8:
		i64 = int64(n)
	case int16:
		i64 = int64(n)
	case int32:
		i64 = int64(n)
	case int64:
		i64 = n
	case uint:
		i64 = int64(n)
	case uint8:
		i64 = int64(n)
	case uint16:
		i64 = int64(n)
	case uint32:
		i64 = int64(n)
	case uint64:
		i64 = int64(n)
	case float64:
		i64 = int64(n)
	case string:
		p, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", n, err)
		}
		i64 = p
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to %s", v, v, t)
	}

	switch t {
	case TypeUI1:
		if i64 < 0 || i64 > 0xFF {
			return nil, fmt.Errorf("%d out of range for ui1", i64)
		}
		return uint8(i64), nil
	case TypeUI2:
		if i64 < 0 || i64 > 0xFFFF {
			return nil, fmt.Errorf("%d out of range for ui2", i64)
		}
		return uint16(i64), nil
	case TypeUI4:
		if i64 < 0 || i64 > 0xFFFFFFFF {
			return nil, fmt.Errorf("%d out of range for ui4", i64)
		}
		return uint32(i64), nil
	case TypeI1:
		if i64 < -0x80 || i64 > 0x7F {
			return nil, fmt.Errorf("%d out of range for i1", i64)
		}
		return int8(i64), nil
	case TypeI2:
		if i64 < -0x8000 || i64 > 0x7FFF {
			return nil, fmt.Errorf("%d out of range for i2", i64)
		}
		return int16(i64), nil
	default: // TypeI4, TypeInt
		if i64 < -0x80000000 || i64 > 0x7FFFFFFF {
			return nil, fmt.Errorf("%d out of range for i4", i64)
		}
		return int32(i64), nil
	}
}

func castFloat(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number: %w", n, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to a number", v, v)
	}
}

func castChar(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case rune:
		return n, nil
	case string:
		r := []rune(n)
		if len(r) != 1 {
			return nil, fmt.Errorf("%q is not a single character", n)
		}
		return r[0], nil
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to char", v, v)
	}
}

func castBool(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case bool:
		return n, nil
	case string:
		switch strings.TrimSpace(n) {
		case "1", "true", "yes":
			return true, nil
		case "0", "false", "no":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a valid boolean", n)
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to boolean", v, v)
	}
}

func castBytes(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case []byte:
		return n, nil
	case string:
		if b, err := base64.StdEncoding.DecodeString(n); err == nil {
			return b, nil
		}
		if b, err := hex.DecodeString(n); err == nil {
			return b, nil
		}
		return nil, fmt.Errorf("%q is neither valid base64 nor hex", n)
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to binary", v, v)
	}
}

func castTime(t StateVarType, v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case time.Time:
		return n, nil
	case string:
		layouts := map[StateVarType][]string{
			TypeDate:       {"2006-01-02"},
			TypeDateTime:   {"2006-01-02T15:04:05", "2006-01-02 15:04:05"},
			TypeDateTimeTZ: {time.RFC3339},
			TypeTime:       {"15:04:05"},
			TypeTimeTZ:     {"15:04:05Z07:00"},
		}
		var lastErr error
		for _, layout := range layouts[t] {
			if parsed, err := time.Parse(layout, n); err == nil {
				return parsed, nil
			} else {
				lastErr = err
			}
		}
		return nil, fmt.Errorf("%q does not match %s layout: %w", n, t, lastErr)
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to %s", v, v, t)
	}
}

func castUUID(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case uuid.UUID:
		return n, nil
	case string:
		u, err := uuid.Parse(n)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid uuid: %w", n, err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to uuid", v, v)
	}
}

func castURI(v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case *url.URL:
		return n, nil
	case string:
		u, err := url.Parse(n)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid uri: %w", n, err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%v (%T) is not castable to uri", v, v)
	}
}

// Cmp compares two already-cast values of type t. For the non-orderable
// types (bin.*) it always returns 0.
func (t StateVarType) Cmp(a, b interface{}) int {
	switch t {
	case TypeUI1, TypeUI2, TypeUI4, TypeI1, TypeI2, TypeI4, TypeInt:
		af, _ := castFloat(toInt64Interface(a))
		bf, _ := castFloat(toInt64Interface(b))
		return cmpFloat(af.(float64), bf.(float64))
	case TypeR4, TypeR8, TypeNumber, TypeFixed14_4:
		return cmpFloat(a.(float64), b.(float64))
	case TypeChar:
		return int(a.(rune)) - int(b.(rune))
	case TypeString, TypeUUID, TypeURI:
		return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
	case TypeDate, TypeDateTime, TypeDateTimeTZ, TypeTime, TypeTimeTZ:
		at, bt := a.(time.Time), b.(time.Time)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	case TypeBoolean:
		ab, bb := a.(bool), b.(bool)
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func toInt64Interface(v interface{}) interface{} {
	switch n := v.(type) {
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return v
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// InRange reports whether v (already cast) falls inside the inclusive
// bounds of r. A nil range always matches.
func (t StateVarType) InRange(v interface{}, r *ValueRange) (bool, error) {
	if r == nil {
		return true, nil
	}
	return t.Cmp(v, r.min) >= 0 && t.Cmp(v, r.max) <= 0, nil
}
