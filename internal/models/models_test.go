package models

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityTier_OrderAndText(t *testing.T) {
	assert.True(t, TierNormal < TierWarning)
	assert.True(t, TierWarning < TierCritical)
	assert.Equal(t, TierCritical, TierWarning.Max(TierCritical))
	assert.Equal(t, TierWarning, TierWarning.Max(TierNormal))

	b, err := json.Marshal(struct {
		Tier SeverityTier `json:"tier"`
	}{TierWarning})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"warning"}`, string(b))

	var v struct {
		Tier SeverityTier `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"tier":"CRITICAL"}`), &v))
	assert.Equal(t, TierCritical, v.Tier)

	assert.Error(t, json.Unmarshal([]byte(`{"tier":"panic"}`), &v))
}

func TestFlexRequests_Active(t *testing.T) {
	f := FlexRequests{FlexWater: true, FlexFood: true, FlexRestroom: false}
	assert.Equal(t, []string{"food", "water"}, f.Active())
	assert.True(t, f.Any())
	assert.False(t, FlexRequests{FlexFood: false}.Any())
}

func TestVitalReading_CloneIsDeep(t *testing.T) {
	r := VitalReading{
		MuscleActivity: Float64Ptr(4),
		ECG:            &ECG{Value: 80},
		FlexRequests:   FlexRequests{FlexFood: true},
	}
	c := r.Clone()
	*c.MuscleActivity = 9
	c.ECG.LeadOff = true
	c.FlexRequests[FlexFood] = false

	assert.Equal(t, 4.0, *r.MuscleActivity)
	assert.False(t, r.ECG.LeadOff)
	assert.True(t, r.FlexRequests[FlexFood])
}

func TestValidationError(t *testing.T) {
	assert.Nil(t, NewValidationError(nil))

	err := NewValidationError(map[string]string{
		"temperature": "required",
		"heart_rate":  "must be a finite number",
	})
	require.NotNil(t, err)
	assert.Equal(t, []string{"heart_rate", "temperature"}, err.Fields)
	assert.True(t, err.Has("temperature"))
	assert.Contains(t, err.Error(), "temperature: required")
}

func TestTransportError_Unwrap(t *testing.T) {
	err := error(&TransportError{Op: "insert reading", Err: io.ErrUnexpectedEOF})
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "insert reading", te.Op)
}

func TestParseFallSeverity(t *testing.T) {
	s, err := ParseFallSeverity("Medium")
	require.NoError(t, err)
	assert.Equal(t, FallMedium, s)

	_, err = ParseFallSeverity("extreme")
	assert.Error(t, err)
}
