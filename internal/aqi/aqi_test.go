package aqi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearskies/clearskies/internal/aqi"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		param aqi.Parameter
		conc  float64
		want  int
	}{
		{"pm25 zero", aqi.PM25, 0, 0},
		{"pm25 mid good", aqi.PM25, 6.0, 25},
		{"pm25 bottom of moderate", aqi.PM25, 12.1, 51},
		{"pm25 sensitive range", aqi.PM25, 40, 112},
		{"pm25 bottom of hazardous", aqi.PM25, 250.5, 301},
		{"pm25 beyond table", aqi.PM25, 900, 500},
		{"no2 moderate", aqi.NO2, 77, 75},
		{"no2 unhealthy", aqi.NO2, 361, 151},
		{"o3 good", aqi.O3, 27, 25},
		{"o3 beyond table", aqi.O3, 250, 500},
		{"negative clamps to zero", aqi.PM25, -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := aqi.Calculate(tt.param, tt.conc)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_UnknownParameter(t *testing.T) {
	for _, p := range []aqi.Parameter{aqi.PM10, aqi.SO2, aqi.CO, "hcho"} {
		_, ok := aqi.Calculate(p, 10)
		assert.False(t, ok, "parameter %s should have no table", p)
	}
}

func TestCalculate_GapBetweenRanges(t *testing.T) {
	got, ok := aqi.Calculate(aqi.PM25, 12.05)
	require.True(t, ok)
	assert.Equal(t, 51, got)

	got, _ = aqi.Calculate(aqi.NO2, 53.5)
	assert.Equal(t, 51, got)
}

func TestCalculate_Monotonic(t *testing.T) {
	for _, p := range []aqi.Parameter{aqi.PM25, aqi.NO2, aqi.O3} {
		t.Run(string(p), func(t *testing.T) {
			table := aqi.Breakpoints(p)
			require.NotEmpty(t, table)
			upper := table[len(table)-1].CHigh + 50

			prev := -1
			for c := 0.0; c <= upper; c += 0.05 {
				got, _ := aqi.Calculate(p, c)
				require.GreaterOrEqual(t, got, prev, "index decreased at %.2f", c)
				require.LessOrEqual(t, got, aqi.MaxIndex)
				prev = got
			}
		})
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		index int
		want  aqi.Category
	}{
		{0, aqi.Good},
		{50, aqi.Good},
		{51, aqi.Moderate},
		{100, aqi.Moderate},
		{101, aqi.UnhealthyForSensitiveGroups},
		{150, aqi.UnhealthyForSensitiveGroups},
		{151, aqi.Unhealthy},
		{200, aqi.Unhealthy},
		{201, aqi.VeryUnhealthy},
		{300, aqi.VeryUnhealthy},
		{301, aqi.Hazardous},
		{500, aqi.Hazardous},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, aqi.CategoryOf(tt.index), "index %d", tt.index)
	}
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "Good", aqi.Good.Label())
	assert.Equal(t, "Unhealthy-Sensitive", aqi.UnhealthyForSensitiveGroups.Label())
	assert.Equal(t, "Very-Unhealthy", aqi.VeryUnhealthy.Label())
	assert.Equal(t, "Unknown", aqi.Category("").Label())
}

func TestColorAndMessage(t *testing.T) {
	assert.Equal(t, "#10B981", aqi.ColorOf(42))
	assert.Equal(t, "#F97316", aqi.ColorOf(112))
	assert.Equal(t, "#7F1D1D", aqi.ColorOf(420))
	assert.Equal(t, "Sensitive groups should limit prolonged outdoor exertion", aqi.HealthMessageOf(112))
}

func TestParseParameter(t *testing.T) {
	tests := map[string]aqi.Parameter{
		"PM2.5": aqi.PM25,
		"pm25":  aqi.PM25,
		"pm2_5": aqi.PM25,
		"NO2":   aqi.NO2,
		"o3":    aqi.O3,
		"CO":    aqi.CO,
	}
	for in, want := range tests {
		got, ok := aqi.ParseParameter(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}

	_, ok := aqi.ParseParameter("bc")
	assert.False(t, ok)
}

func TestOverall(t *testing.T) {
	t.Run("max wins", func(t *testing.T) {
		r := aqi.Overall(map[aqi.Parameter]int{aqi.PM25: 112, aqi.O3: 40})
		assert.Equal(t, 112, r.Index)
		assert.Equal(t, aqi.PM25, r.DominantParameter)
		assert.Equal(t, aqi.UnhealthyForSensitiveGroups, r.Category)
	})

	t.Run("ties follow parameter order", func(t *testing.T) {
		r := aqi.Overall(map[aqi.Parameter]int{aqi.NO2: 70, aqi.O3: 70})
		assert.Equal(t, aqi.O3, r.DominantParameter)
	})

	t.Run("extra candidate", func(t *testing.T) {
		r := aqi.Overall(map[aqi.Parameter]int{aqi.PM25: 30}, aqi.Scored{Parameter: aqi.NO2, Index: 80})
		assert.Equal(t, 80, r.Index)
		assert.Equal(t, aqi.NO2, r.DominantParameter)
	})

	t.Run("nothing scored", func(t *testing.T) {
		r := aqi.Overall(nil)
		assert.Equal(t, aqi.DefaultIndex, r.Index)
		assert.Equal(t, aqi.Good, r.Category)
		assert.Equal(t, aqi.PM25, r.DominantParameter)
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, "PM2.5", aqi.DisplayName(aqi.PM25))
	assert.Equal(t, "Nitrogen Dioxide", aqi.FullName(aqi.NO2))
	assert.Equal(t, "HCHO", aqi.DisplayName("hcho"))
}
