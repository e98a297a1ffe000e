package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeReason(t *testing.T) {
	tests := []struct{ in, want string }{
		{"spam", ReasonSpam},
		{"  Harassment ", ReasonHarassment},
		{"EXPLICIT", ReasonExplicit},
		{"", ReasonOther},
		{"rude", ReasonOther},
	}
	for _, tt := range tests {
		if got := NormalizeReason(tt.in); got != tt.want {
			t.Errorf("NormalizeReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	r := Report{RoomID: "room", ReporterID: "a", ReportedID: "b", Reason: "Spam"}
	require.NoError(t, r.Validate())
	assert.Equal(t, ReasonSpam, r.Reason)

	assert.ErrorIs(t, (&Report{ReporterID: "a", ReportedID: "b"}).Validate(), ErrMissingRoom)
	assert.ErrorIs(t, (&Report{RoomID: "room", ReporterID: "a"}).Validate(), ErrMissingParties)
}

func TestLogReporter(t *testing.T) {
	assert.NoError(t, LogReporter{}.File(context.Background(), Report{RoomID: "room", ReporterID: "a", ReportedID: "b"}))
}

func TestFanout(t *testing.T) {
	var got []Report
	record := ReporterFunc(func(_ context.Context, r Report) error {
		got = append(got, r)
		return nil
	})
	boom := errors.New("sink down")
	failing := ReporterFunc(func(context.Context, Report) error { return boom })

	fan := Fanout{failing, record, LogReporter{}}
	err := fan.File(context.Background(), Report{RoomID: "room", ReporterID: "a", ReportedID: "b", Reason: "weird"})

	assert.ErrorIs(t, err, boom)
	require.Len(t, got, 1, "a failing sink must not stop the others")
	assert.Equal(t, ReasonOther, got[0].Reason)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestFanout_RejectsInvalid(t *testing.T) {
	called := false
	fan := Fanout{ReporterFunc(func(context.Context, Report) error {
		called = true
		return nil
	})}

	err := fan.File(context.Background(), Report{ReporterID: "a", ReportedID: "b"})
	assert.ErrorIs(t, err, ErrMissingRoom)
	assert.False(t, called)
}
