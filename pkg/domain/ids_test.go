package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantID(t *testing.T) {
	t.Run("parse round-trips", func(t *testing.T) {
		raw := uuid.NewString()
		id, err := ParseParticipantID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, id.String())
		assert.False(t, id.IsNil())
	})

	t.Run("rejects non-uuid", func(t *testing.T) {
		_, err := ParseParticipantID("not-a-uuid")
		assert.Error(t, err)
	})

	t.Run("zero value is nil", func(t *testing.T) {
		var id ParticipantID
		assert.True(t, id.IsNil())
	})
}

func TestConferenceID(t *testing.T) {
	raw := uuid.NewString()
	id, err := ParseConferenceID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, id.String())

	_, err = ParseConferenceID("")
	assert.Error(t, err)
}

func TestZoneID(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid slug", "hall-a", false},
		{"valid with digits", "room2", false},
		{"empty", "", true},
		{"whitespace", "hall a", true},
		{"uppercase", "Hall-A", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			z, err := ParseZoneID(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.in, z.String())
		})
	}
}

func FuzzParseZoneID(f *testing.F) {
	f.Add("hall-a")
	f.Add("Hall A")
	f.Add("")
	f.Fuzz(func(t *testing.T, s string) {
		z, err := ParseZoneID(s)
		if err == nil && z.IsNil() {
			t.Errorf("ParseZoneID(%q) succeeded but returned nil zone", s)
		}
	})
}
