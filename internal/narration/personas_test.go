package narration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearskies/clearskies/internal/narration"
)

func TestGetPersona(t *testing.T) {
	p := narration.GetPersona(narration.PersonaSchool)
	assert.Equal(t, narration.PersonaSchool, p.Type)
	assert.Equal(t, "School Administrator", p.Name)
	assert.Len(t, p.Thresholds, 4)

	unknown := narration.GetPersona("astronaut")
	assert.Equal(t, narration.PersonaGeneral, unknown.Type)
	assert.False(t, narration.KnownPersona("astronaut"))
	assert.True(t, narration.KnownPersona(narration.PersonaGeneral))
}

func TestPersonas_ExcludesGeneral(t *testing.T) {
	all := narration.Personas()
	assert.Len(t, all, 9)
	for _, p := range all {
		assert.NotEqual(t, narration.PersonaGeneral, p.Type)
		assert.NotEmpty(t, p.Concerns, p.Type)
		assert.NotEmpty(t, p.KeyQuestions, p.Type)
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		persona narration.PersonaType
		aqi     int
		want    string
	}{
		{narration.PersonaVulnerable, 50, narration.RiskLow},
		{narration.PersonaVulnerable, 51, narration.RiskModerate},
		{narration.PersonaVulnerable, 75, narration.RiskModerate},
		{narration.PersonaVulnerable, 100, narration.RiskHigh},
		{narration.PersonaVulnerable, 101, narration.RiskCritical},
		{narration.PersonaSchool, 112, narration.RiskHigh},
		{narration.PersonaEmergency, 100, narration.RiskLow},
		{narration.PersonaEmergency, 201, narration.RiskCritical},
		{"unknown", 40, narration.RiskLow},
		{"unknown", 160, narration.RiskCritical},
	}

	for _, tt := range tests {
		t.Run(string(tt.persona), func(t *testing.T) {
			assert.Equal(t, tt.want, narration.RiskLevel(tt.persona, tt.aqi))
		})
	}
}

func TestActivitySafe(t *testing.T) {
	assert.True(t, narration.ActivitySafe(narration.PersonaSchool, "recess", 100))
	assert.False(t, narration.ActivitySafe(narration.PersonaSchool, "sports_practice", 51))
	// Unknown activities use the first threshold.
	assert.True(t, narration.ActivitySafe(narration.PersonaSchool, "chess", 50))
	assert.False(t, narration.ActivitySafe(narration.PersonaGovernment, "parade", 51))
}
