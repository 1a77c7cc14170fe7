package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestNewSession(t *testing.T) {
	meta := ClientMeta{IP: "203.0.113.9", DeviceType: "desktop"}
	s := NewSession(5, meta, testNow)

	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 0, s.CurrentPage)
	assert.Equal(t, 5, s.TotalPages)
	assert.Equal(t, meta, s.Meta)
	assert.Equal(t, testNow, s.CreatedAt)
	assert.Equal(t, testNow, s.LastActivity)
	assert.Equal(t, int64(1), s.Version)
	assert.Empty(t, s.Answers)
}

func TestApplyProgress_MergesAndAdvances(t *testing.T) {
	s := NewSession(5, ClientMeta{}, testNow)

	err := s.ApplyProgress(1, Answers{"a": StringValue("1")}, testNow.Add(time.Minute))
	require.NoError(t, err)
	err = s.ApplyProgress(3, Answers{"b": StringValue("2")}, testNow.Add(2*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 3, s.CurrentPage)
	assert.Equal(t, Answers{"a": StringValue("1"), "b": StringValue("2")}, s.Answers)
	assert.Equal(t, testNow.Add(2*time.Minute), s.LastActivity)
}

func TestApplyProgress_PageNeverDecreases(t *testing.T) {
	s := NewSession(5, ClientMeta{}, testNow)

	require.NoError(t, s.ApplyProgress(4, nil, testNow))
	require.NoError(t, s.ApplyProgress(1, Answers{"late": StringValue("x")}, testNow))

	assert.Equal(t, 4, s.CurrentPage)
	assert.Equal(t, StringValue("x"), s.Answers["late"])
}

func TestApplyProgress_PageOutOfRange(t *testing.T) {
	s := NewSession(3, ClientMeta{}, testNow)

	assert.ErrorIs(t, s.ApplyProgress(-1, nil, testNow), ErrPageOutOfRange)
	assert.ErrorIs(t, s.ApplyProgress(3, nil, testNow), ErrPageOutOfRange)
}

func TestApplyProgress_TerminalSessionRejected(t *testing.T) {
	s := NewSession(3, ClientMeta{}, testNow)
	require.NoError(t, s.Transition(StatusAbandoned, testNow))

	assert.ErrorIs(t, s.ApplyProgress(1, nil, testNow), ErrSessionNotActive)
}

func TestTransition_Graph(t *testing.T) {
	for _, terminal := range []SessionStatus{StatusCompleted, StatusExpired, StatusAbandoned} {
		t.Run(string(terminal), func(t *testing.T) {
			s := NewSession(3, ClientMeta{}, testNow)
			require.NoError(t, s.Transition(terminal, testNow.Add(time.Hour)))
			assert.Equal(t, terminal, s.Status)

			// terminal states accept no further edges
			assert.ErrorIs(t, s.Transition(StatusExpired, testNow), ErrInvalidTransition)
			assert.ErrorIs(t, s.Transition(StatusActive, testNow), ErrInvalidTransition)
		})
	}
}

func TestTransition_StampsTimestamps(t *testing.T) {
	later := testNow.Add(time.Hour)

	s := NewSession(3, ClientMeta{}, testNow)
	require.NoError(t, s.Transition(StatusCompleted, later))
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, later, *s.CompletedAt)
	assert.Nil(t, s.ExpiredAt)

	s = NewSession(3, ClientMeta{}, testNow)
	require.NoError(t, s.Transition(StatusExpired, later))
	require.NotNil(t, s.ExpiredAt)
	assert.Equal(t, later, *s.ExpiredAt)
	assert.Nil(t, s.CompletedAt)
}

func TestTouch_LastActivityNeverDecreases(t *testing.T) {
	s := NewSession(3, ClientMeta{}, testNow)
	require.NoError(t, s.ApplyProgress(1, nil, testNow.Add(time.Hour)))
	require.NoError(t, s.ApplyProgress(2, nil, testNow.Add(time.Minute)))

	assert.Equal(t, testNow.Add(time.Hour), s.LastActivity)
}

func TestFinalize(t *testing.T) {
	s := NewSession(2, ClientMeta{IP: "198.51.100.7"}, testNow)
	require.NoError(t, s.ApplyProgress(1, Answers{"q1": ListValue("a", "b")}, testNow))

	record := s.Finalize(testNow.Add(time.Minute))

	assert.Equal(t, s.ID, record.SessionID)
	assert.NotEqual(t, s.ID, record.ID)
	assert.Equal(t, s.Meta, record.Meta)
	assert.Equal(t, testNow.Add(time.Minute), record.FinalizedAt)
	assert.True(t, record.Answers["q1"].Equal(ListValue("a", "b")))

	// record holds its own copy of the answers
	s.Answers["q1"] = StringValue("mutated")
	assert.True(t, record.Answers["q1"].Equal(ListValue("a", "b")))
}

func TestClone_Independent(t *testing.T) {
	s := NewSession(2, ClientMeta{}, testNow)
	require.NoError(t, s.ApplyProgress(1, Answers{"q": StringValue("v")}, testNow))

	snapshot := s.Clone()
	require.NoError(t, s.ApplyProgress(1, Answers{"q": StringValue("changed")}, testNow))

	assert.Equal(t, StringValue("v"), snapshot.Answers["q"])
	assert.Equal(t, StringValue("changed"), s.Answers["q"])
}
