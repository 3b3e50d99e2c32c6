package presale

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertToTokens_RoundTrip(t *testing.T) {
	amounts := []float64{0.5, 10, 12345.678}
	rates := []float64{0.0037, 1, 250}

	for _, amount := range amounts {
		for _, rate := range rates {
			tokens := ConvertToTokens(amount, rate)
			assert.InEpsilon(t, amount, tokens*rate, 1e-9,
				"amount=%v rate=%v", amount, rate)
		}
	}
}

func TestConvertToTokens_ExampleScenario(t *testing.T) {
	tokens := ConvertToTokens(10, 0.0037)
	assert.InDelta(t, 2702.7027, tokens, 1e-4)
}

func TestConvertToTokens_InvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		amount float64
		rate   float64
	}{
		{"zero amount", 0, 0.0037},
		{"negative amount", -5, 0.0037},
		{"nan amount", math.NaN(), 0.0037},
		{"inf amount", math.Inf(1), 0.0037},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := ConvertToTokens(tc.amount, tc.rate)
			assert.Zero(t, tokens)
			assert.False(t, math.IsNaN(tokens))
		})
	}
}

func TestConvertToTokens_FallbackRate(t *testing.T) {
	// Нулевой и отрицательный курс заменяются курсом по умолчанию,
	// деления на ноль нет.
	tokens := ConvertToTokens(10, 0)
	assert.InDelta(t, 10/DefaultRate, tokens, 1e-9)

	tokens = ConvertToTokens(10, -1)
	assert.InDelta(t, 10/DefaultRate, tokens, 1e-9)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input string
		want  float64
	}{
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"NaN", 0},
		{"Inf", 0},
		{"10", 10},
		{" 12.5 ", 12.5},
		{"0.0001", 0.0001},
	}

	for _, tc := range cases {
		got := ParseAmount(tc.input)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
		assert.False(t, math.IsNaN(got))
	}
}
