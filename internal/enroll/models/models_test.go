package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/pkg/platform/sentinel"
)

func TestConfirmationEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   ConfirmationEvent
		wantErr bool
	}{
		{
			name:  "valid event",
			event: ConfirmationEvent{Email: "a@x.com", Subject: "sub-1"},
		},
		{
			name:  "optional fields may be empty",
			event: ConfirmationEvent{Email: "a@x.com", Subject: "sub-1", Name: "", Phone: ""},
		},
		{
			name:    "missing email",
			event:   ConfirmationEvent{Subject: "sub-1"},
			wantErr: true,
		},
		{
			name:    "missing subject",
			event:   ConfirmationEvent{Email: "a@x.com"},
			wantErr: true,
		},
		{
			name:    "whitespace-only email",
			event:   ConfirmationEvent{Email: "   ", Subject: "sub-1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, sentinel.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{
		Record: Record{
			Key:     "usr_1",
			Subject: "sub-1",
			Email:   "a@x.com",
		},
		Attempts:       1,
		FirstAttemptAt: time.Now(),
	}
	require.NoError(t, valid.Validate())

	noKey := valid
	noKey.Record.Key = ""
	require.ErrorIs(t, noKey.Validate(), sentinel.ErrInvalidInput)

	noSubject := valid
	noSubject.Record.Subject = ""
	require.ErrorIs(t, noSubject.Validate(), sentinel.ErrInvalidInput)

	zeroAttempts := valid
	zeroAttempts.Attempts = 0
	require.ErrorIs(t, zeroAttempts.Validate(), sentinel.ErrInvalidInput)
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "en", s.Locale)
	assert.False(t, s.MarketingOptIn, "marketing consent must never default to opted in")
	assert.True(t, s.WeeklyDigest)
	assert.True(t, s.NotifyByEmail)
	assert.True(t, s.ProfileSearchable)
}
