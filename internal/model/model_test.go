package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStatusPredicates(t *testing.T) {
	testCases := []struct {
		status       LoanStatus
		valid        bool
		allowsReturn bool
		isCompleted  bool
	}{
		{LoanStatusActive, true, true, false},
		{LoanStatusOverdue, true, true, false},
		{LoanStatusReturned, true, false, true},
		{LoanStatusCancelled, true, false, true},
		{LoanStatus("LOST"), false, false, false},
		{LoanStatus(""), false, false, false},
	}

	for _, tt := range testCases {
		assert.Equal(t, tt.valid, tt.status.Valid(), "Valid(%s)", tt.status)
		assert.Equal(t, tt.allowsReturn, tt.status.AllowsReturn(), "AllowsReturn(%s)", tt.status)
		assert.Equal(t, tt.isCompleted, tt.status.IsCompleted(), "IsCompleted(%s)", tt.status)
	}
}

func TestLoanStatusCanTransitionTo(t *testing.T) {
	allowed := map[LoanStatus][]LoanStatus{
		LoanStatusActive:  {LoanStatusReturned, LoanStatusOverdue, LoanStatusCancelled},
		LoanStatusOverdue: {LoanStatusReturned},
	}

	statuses := []LoanStatus{LoanStatusActive, LoanStatusReturned, LoanStatusOverdue, LoanStatusCancelled}
	for _, from := range statuses {
		for _, to := range statuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestLoanTransitionTo(t *testing.T) {
	loan := &Loan{ID: 1, Status: LoanStatusActive}

	require.NoError(t, loan.TransitionTo(LoanStatusOverdue))
	assert.Equal(t, LoanStatusOverdue, loan.Status)

	require.NoError(t, loan.TransitionTo(LoanStatusReturned))
	assert.Equal(t, LoanStatusReturned, loan.Status)

	err := loan.TransitionTo(LoanStatusActive)
	require.Error(t, err)
	assert.Equal(t, LoanStatusReturned, loan.Status, "failed transition must not change status")
}

func TestLoanIsOverdue(t *testing.T) {
	today := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name    string
		status  LoanStatus
		dueDate time.Time
		overdue bool
		days    int
	}{
		{"due in the future", LoanStatusActive, today.AddDate(0, 0, 5), false, 0},
		{"due today", LoanStatusActive, today, false, 0},
		{"past due", LoanStatusActive, today.AddDate(0, 0, -5), true, 5},
		{"past due but returned", LoanStatusReturned, today.AddDate(0, 0, -5), false, 0},
		{"past due already swept", LoanStatusOverdue, today.AddDate(0, 0, -5), false, 0},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			loan := &Loan{Status: tt.status, DueDate: tt.dueDate}
			assert.Equal(t, tt.overdue, loan.IsOverdue(today))
			assert.Equal(t, tt.days, loan.DaysOverdue(today))
		})
	}
}

func TestLoanDurationDays(t *testing.T) {
	loan := &Loan{
		LoanDate: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		DueDate:  time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 14, loan.DurationDays())
}

func TestDateOf(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"truncates time of day",
			time.Date(2025, time.March, 10, 15, 42, 7, 123, time.UTC),
			time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			"normalizes to UTC before truncating",
			time.Date(2025, time.March, 10, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*60*60)),
			time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateOf(tt.in))
		})
	}
}
