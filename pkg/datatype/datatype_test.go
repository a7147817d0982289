package datatype

import (
	"encoding/json"
	"harnsnode/pkg/runtime/constant"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatRange(t *testing.T) {
	fr := NewFloatRange(0, 2000, WithUnit("mm"))

	tests := []struct {
		name    string
		in      interface{}
		want    float64
		wantErr bool
	}{
		{name: "int", in: 500, want: 500},
		{name: "float32", in: float32(1.5), want: 1.5},
		{name: "json number", in: json.Number("12.25"), want: 12.25},
		{name: "lower limit", in: 0.0, want: 0},
		{name: "snapped to max", in: 2000 * (1 + 1e-8), want: 2000},
		{name: "too large", in: 5000, wantErr: true},
		{name: "negative", in: -1, wantErr: true},
		{name: "string", in: "12", wantErr: true},
		{name: "nan", in: math.NaN(), wantErr: true},
		{name: "positive infinity", in: math.Inf(1), wantErr: true},
		{name: "negative infinity", in: math.Inf(-1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fr.Validate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, constant.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "mm", fr.Unit())
	assert.Equal(t, Description{"type": "double", "min": 0.0, "max": 2000.0, "unit": "mm"}, fr.Describe())
}

func TestFloatRangeAbsoluteResolution(t *testing.T) {
	fr := NewFloatRange(0, 1, WithResolution(0.01, 0))
	got, err := fr.Validate(-0.005)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	_, err = fr.Validate(1.02)
	assert.ErrorIs(t, err, constant.ErrValidation)
}

func TestFloatRangeUnbounded(t *testing.T) {
	fr := NewFloatRange(math.Inf(-1), math.Inf(1))
	got, err := fr.Validate(-1e300)
	require.NoError(t, err)
	assert.Equal(t, -1e300, got)
	assert.NotContains(t, fr.Describe(), "min")

	got, err = fr.Validate(math.Inf(1))
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.(float64), 1))

	_, err = NewFloatRange(0, math.Inf(1)).Validate(math.Inf(-1))
	assert.ErrorIs(t, err, constant.ErrValidation)
}

func TestIntRange(t *testing.T) {
	ir := NewIntRange(-5, 5, "")

	got, err := ir.Validate(3.0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	_, err = ir.Validate(3.5)
	assert.ErrorIs(t, err, constant.ErrValidation)
	_, err = ir.Validate(uint64(6))
	assert.ErrorIs(t, err, constant.ErrValidation)
	_, err = ir.Validate(true)
	assert.ErrorIs(t, err, constant.ErrValidation)
}

func TestEnum(t *testing.T) {
	e := NewEnum("sample_rate", EnumMember{Name: "slow", Value: 0}, EnumMember{Name: "fast", Value: 1})

	got, err := e.Validate("fast")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = e.Validate(float64(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	_, err = e.Validate("medium")
	assert.ErrorIs(t, err, constant.ErrValidation)
	_, err = e.Validate(2)
	assert.ErrorIs(t, err, constant.ErrValidation)

	name, ok := e.Name(1)
	assert.True(t, ok)
	assert.Equal(t, "fast", name)
	assert.Equal(t, []EnumMember{{Name: "slow", Value: 0}, {Name: "fast", Value: 1}}, e.Members())
}

func TestBoolAndString(t *testing.T) {
	got, err := Bool{}.Validate(1)
	require.NoError(t, err)
	assert.Equal(t, true, got)
	_, err = Bool{}.Validate("yes")
	assert.ErrorIs(t, err, constant.ErrValidation)

	s := NewString(1, 4)
	got, err = s.Validate([]byte("äbc"))
	require.NoError(t, err)
	assert.Equal(t, "äbc", got)
	_, err = s.Validate("")
	assert.ErrorIs(t, err, constant.ErrValidation)
	_, err = s.Validate("abcde")
	assert.ErrorIs(t, err, constant.ErrValidation)
}

func TestStructIsAtomic(t *testing.T) {
	st := NewStruct([]Member{
		{Name: "p", Type: NewFloatRange(0, 10)},
		{Name: "i", Type: NewFloatRange(0, 10)},
		{Name: "comment", Type: NewString(0, 0)},
	}, "comment")

	got, err := st.Validate(map[string]interface{}{"p": 1, "i": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"p": 1.0, "i": 2.0}, got)

	in := map[string]interface{}{"p": 1, "i": 20}
	_, err = st.Validate(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, constant.ErrValidation)
	assert.Contains(t, err.Error(), `"i"`)
	// input untouched
	assert.Equal(t, 1, in["p"])

	_, err = st.Validate(map[string]interface{}{"p": 1})
	assert.ErrorIs(t, err, constant.ErrValidation)
	_, err = st.Validate(map[string]interface{}{"p": 1, "i": 1, "d": 1})
	assert.ErrorIs(t, err, constant.ErrValidation)
}

func TestStatusType(t *testing.T) {
	st := NewStatusType()

	got, err := st.Validate([]interface{}{"IDLE", "sensor ok"})
	require.NoError(t, err)
	assert.Equal(t, StatusValue{Code: constant.IDLE, Text: "sensor ok"}, got)

	got, err = st.Validate(map[string]interface{}{"code": 400.0, "text": "no sensor"})
	require.NoError(t, err)
	assert.Equal(t, StatusValue{Code: constant.ERROR, Text: "no sensor"}, got)

	_, err = st.Validate(StatusValue{Code: constant.BUSY})
	assert.ErrorIs(t, err, constant.ErrValidation)

	assert.True(t, NewStatusType(constant.IDLE, constant.BUSY).Allows(constant.BUSY))
}

func TestValidateIsIdempotent(t *testing.T) {
	types := []struct {
		dt DataType
		in interface{}
	}{
		{dt: NewFloatRange(0, 100, WithUnit("%")), in: 100 * (1 + 1e-9)},
		{dt: NewIntRange(0, 10, ""), in: 7.0},
		{dt: NewEnum("mode", EnumMember{Name: "a", Value: 3}), in: "a"},
		{dt: Bool{}, in: 0},
		{dt: NewString(0, 0), in: []byte("x")},
		{dt: NewStruct([]Member{{Name: "v", Type: NewFloatRange(0, 1)}}), in: map[string]interface{}{"v": 1}},
		{dt: NewStatusType(), in: []interface{}{100, "ok"}},
	}
	for _, tt := range types {
		t.Run(tt.dt.Kind().String(), func(t *testing.T) {
			once, err := tt.dt.Validate(tt.in)
			require.NoError(t, err)
			twice, err := tt.dt.Validate(once)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}
