package view

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ScalarKind tags the variant held by a Scalar.
type ScalarKind int

const (
	Null ScalarKind = iota
	String
	Number
	Bool
	DateTime
)

func (k ScalarKind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case DateTime:
		return "datetime"
	default:
		return "null"
	}
}

// Scalar is the coerced form of one JSON value supplied by a caller.
// The zero value is Null.
type Scalar struct {
	t    time.Time
	num  decimal.Decimal
	text string // string value, or the literal a Number or DateTime was parsed from
	kind ScalarKind
	b    bool
}

func NullValue() Scalar                    { return Scalar{} }
func StringValue(s string) Scalar          { return Scalar{kind: String, text: s} }
func NumberValue(d decimal.Decimal) Scalar { return Scalar{kind: Number, num: d} }
func BoolValue(b bool) Scalar              { return Scalar{kind: Bool, b: b} }

// TimeValue returns a DateTime scalar. literal is the text it was parsed from;
// when empty, t is formatted as RFC 3339.
func TimeValue(t time.Time, literal string) Scalar {
	if literal == "" {
		literal = t.Format(time.RFC3339Nano)
	}
	return Scalar{kind: DateTime, t: t, text: literal}
}

func (s Scalar) Kind() ScalarKind { return s.kind }
func (s Scalar) IsNull() bool     { return s.kind == Null }

// Blank reports whether the scalar imposes no condition: null, or text that
// is empty or whitespace-only.
func (s Scalar) Blank() bool {
	switch s.kind {
	case Null:
		return true
	case String:
		return strings.TrimSpace(s.text) == ""
	}
	return false
}

// Text returns the human-readable form used in filter criteria. Numbers
// read from JSON keep their literal.
func (s Scalar) Text() string {
	switch s.kind {
	case String, DateTime:
		return s.text
	case Number:
		if s.text != "" {
			return s.text
		}
		return s.num.String()
	case Bool:
		if s.b {
			return "true"
		}
		return "false"
	default:
		return "null"
	}
}

// Arg returns the value to bind as a query argument. Numbers and date/times
// encode as the parameter's type when they can and fall back to their text,
// leaving conversion to the backend.
func (s Scalar) Arg() any {
	switch s.kind {
	case String:
		return s.text
	case Number:
		return NumericArg{
			Numeric: pgtype.Numeric{Int: s.num.Coefficient(), Exp: s.num.Exponent(), Valid: true},
			literal: s.Text(),
		}
	case Bool:
		return s.b
	case DateTime:
		return TimeArg{Time: s.t, literal: s.text}
	default:
		return nil
	}
}

// NumericArg binds a Number. The embedded Numeric serves numeric, integer and
// float parameters; any other parameter type receives the literal as text.
type NumericArg struct {
	pgtype.Numeric
	literal string
}

func (a NumericArg) TextValue() (pgtype.Text, error) {
	return pgtype.Text{String: a.literal, Valid: true}, nil
}

// TimeArg binds a DateTime to timestamptz, timestamp and date parameters,
// and as its literal to anything else.
type TimeArg struct {
	Time    time.Time
	literal string
}

func (a TimeArg) TimestamptzValue() (pgtype.Timestamptz, error) {
	return pgtype.Timestamptz{Time: a.Time, Valid: true}, nil
}

func (a TimeArg) TimestampValue() (pgtype.Timestamp, error) {
	return pgtype.Timestamp{Time: a.Time, Valid: true}, nil
}

func (a TimeArg) DateValue() (pgtype.Date, error) {
	y, m, d := a.Time.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}, nil
}

func (a TimeArg) TextValue() (pgtype.Text, error) {
	return pgtype.Text{String: a.literal, Valid: true}, nil
}

// Decimal returns the number held by a Number scalar.
func (s Scalar) Decimal() (decimal.Decimal, bool) {
	return s.num, s.kind == Number
}

// Time returns the instant held by a DateTime scalar.
func (s Scalar) Time() (time.Time, bool) {
	return s.t, s.kind == DateTime
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case String, DateTime:
		return json.Marshal(s.text)
	case Number:
		return []byte(s.Text()), nil
	case Bool:
		return json.Marshal(s.b)
	default:
		return []byte("null"), nil
	}
}

// MaxNumberDigits bounds the digits a Number may have on either side of the
// decimal point once written out.
const MaxNumberDigits = 1000

// InRange reports whether a Number fits MaxNumberDigits. Other kinds always do.
func (s Scalar) InRange() bool {
	if s.kind != Number {
		return true
	}
	exp := int64(s.num.Exponent())
	return exp >= -MaxNumberDigits && int64(s.num.NumDigits())+exp <= MaxNumberDigits
}

// dateTimeLayouts are tried in order against JSON strings.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Coerce converts a raw JSON value into a Scalar:
//   - a string that parses as a date/time literal becomes DateTime
//   - any other string stays String
//   - a number becomes a decimal Number, parsed from its literal text
//   - true/false become Bool
//   - null or empty input becomes Null
//   - anything else (objects, arrays) becomes a String of its compact JSON text
func Coerce(raw json.RawMessage) Scalar {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return NullValue()
	}

	switch c := raw[0]; {
	case c == 'n' && string(raw) == "null":
		return NullValue()
	case c == 't' && string(raw) == "true":
		return BoolValue(true)
	case c == 'f' && string(raw) == "false":
		return BoolValue(false)
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			break
		}
		if t, ok := parseDateTime(s); ok {
			return TimeValue(t, s)
		}
		return StringValue(s)
	case c == '-' || (c >= '0' && c <= '9'):
		if d, err := decimal.NewFromString(string(raw)); err == nil {
			return Scalar{kind: Number, num: d, text: string(raw)}
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return StringValue(string(raw))
	}
	return StringValue(buf.String())
}

func parseDateTime(s string) (time.Time, bool) {
	// every accepted layout starts with a four digit year and a dash
	if len(s) < len("2006-01-02") || s[4] != '-' {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
