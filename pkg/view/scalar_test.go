package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind ScalarKind
		text string
	}{
		{"string", `"alice"`, String, "alice"},
		{"integer", `30`, Number, "30"},
		{"negative fraction", `-12.50`, Number, "-12.50"},
		{"exponent", `1e3`, Number, "1e3"},
		{"huge exponent", `1e999999999`, Number, "1e999999999"},
		{"true", `true`, Bool, "true"},
		{"false", `false`, Bool, "false"},
		{"null", `null`, Null, "null"},
		{"empty", ``, Null, "null"},
		{"date", `"2024-03-01"`, DateTime, "2024-03-01"},
		{"rfc3339", `"2024-03-01T10:20:30Z"`, DateTime, "2024-03-01T10:20:30Z"},
		{"rfc3339 fraction offset", `"2024-03-01T10:20:30.125+02:00"`, DateTime, "2024-03-01T10:20:30.125+02:00"},
		{"local datetime", `"2024-03-01T10:20:30"`, DateTime, "2024-03-01T10:20:30"},
		{"not a date", `"2024-13-45"`, String, "2024-13-45"},
		{"numeric string", `"42"`, String, "42"},
		{"object", `{"a": 1}`, String, `{"a":1}`},
		{"array", `[1, 2]`, String, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Coerce(json.RawMessage(tt.raw))
			assert.Equal(t, tt.kind, s.Kind())
			assert.Equal(t, tt.text, s.Text())
		})
	}
}

func TestCoerceKeepsDecimalPrecision(t *testing.T) {
	s := Coerce(json.RawMessage(`12345678901234567890.123456789`))
	d, ok := s.Decimal()
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890.123456789", d.String())

	arg, ok := s.Arg().(NumericArg)
	require.True(t, ok)
	assert.True(t, arg.Valid)
	assert.Equal(t, d.Coefficient(), arg.Int)
	assert.Equal(t, d.Exponent(), arg.Exp)
}

func TestScalarBlank(t *testing.T) {
	assert.True(t, NullValue().Blank())
	assert.True(t, StringValue("").Blank())
	assert.True(t, StringValue("  \t").Blank())
	assert.False(t, StringValue("x").Blank())
	assert.False(t, NumberValue(decimal.Zero).Blank())
	assert.False(t, BoolValue(false).Blank())
}

func TestScalarArg(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "a", StringValue("a").Arg())
	assert.Equal(t, true, BoolValue(true).Arg())
	assert.Equal(t, ts, TimeValue(ts, "").Arg().(TimeArg).Time)
	assert.Nil(t, NullValue().Arg())
}

func TestScalarInRange(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`30`, true},
		{`-12.50`, true},
		{`1e3`, true},
		{`1e999`, true},
		{`1e1000`, false},
		{`1e999999999`, false},
		{`1e-1000`, true},
		{`1e-1001`, false},
		{`"1e999999999"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(json.RawMessage(tt.raw)).InRange())
		})
	}
}

func TestNumericArgEncoding(t *testing.T) {
	m := pgtype.NewMap()

	t.Run("integer parameter", func(t *testing.T) {
		buf, err := m.Encode(pgtype.Int4OID, pgtype.TextFormatCode, Coerce(json.RawMessage(`30`)).Arg(), nil)
		require.NoError(t, err)
		assert.Equal(t, "30", string(buf))

		_, err = m.Encode(pgtype.Int4OID, pgtype.BinaryFormatCode, Coerce(json.RawMessage(`30`)).Arg(), nil)
		require.NoError(t, err)
	})

	t.Run("fraction for an integer parameter falls back to text", func(t *testing.T) {
		arg := Coerce(json.RawMessage(`30.5`)).Arg()

		_, err := m.Encode(pgtype.Int4OID, pgtype.BinaryFormatCode, arg, nil)
		require.Error(t, err)

		buf, err := m.Encode(pgtype.Int4OID, pgtype.TextFormatCode, arg, nil)
		require.NoError(t, err)
		assert.Equal(t, "30.5", string(buf))
	})

	t.Run("numeric parameter", func(t *testing.T) {
		_, err := m.Encode(pgtype.NumericOID, pgtype.BinaryFormatCode, Coerce(json.RawMessage(`12.50`)).Arg(), nil)
		require.NoError(t, err)
	})

	t.Run("text parameter", func(t *testing.T) {
		buf, err := m.Encode(pgtype.TextOID, pgtype.TextFormatCode, Coerce(json.RawMessage(`42`)).Arg(), nil)
		require.NoError(t, err)
		assert.Equal(t, "42", string(buf))
	})
}

func TestTimeArgEncoding(t *testing.T) {
	m := pgtype.NewMap()
	arg := Coerce(json.RawMessage(`"2024-01-01"`)).Arg()

	buf, err := m.Encode(pgtype.TextOID, pgtype.TextFormatCode, arg, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", string(buf))

	for _, oid := range []uint32{pgtype.TimestamptzOID, pgtype.TimestampOID, pgtype.DateOID} {
		_, err := m.Encode(oid, pgtype.BinaryFormatCode, arg, nil)
		assert.NoError(t, err, "oid %d", oid)
	}

	date, err := arg.(TimeArg).DateValue()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), date.Time)
}

func TestScalarMarshalJSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	values := []Scalar{
		StringValue("a"),
		NumberValue(decimal.RequireFromString("1.50")),
		BoolValue(false),
		TimeValue(ts, "2024-03-01"),
		NullValue(),
	}

	b, err := json.Marshal(values)
	require.NoError(t, err)
	assert.JSONEq(t, `["a", 1.5, false, "2024-03-01", null]`, string(b))
}
