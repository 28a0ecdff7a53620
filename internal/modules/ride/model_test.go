package ride

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusAccepted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPending:    false,
		StatusAccepted:   false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusCancelled:  true,
	} {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestRecurringPattern_Validate(t *testing.T) {
	now := time.Now()
	later := now.Add(30 * 24 * time.Hour)

	tests := []struct {
		name    string
		pattern RecurringPattern
		wantErr bool
	}{
		{"weekday commute", RecurringPattern{Days: []int{1, 2, 3, 4, 5}, StartDate: now, EndDate: later}, false},
		{"single day", RecurringPattern{Days: []int{7}, StartDate: now, EndDate: later}, false},
		{"no days", RecurringPattern{StartDate: now, EndDate: later}, true},
		{"day out of range", RecurringPattern{Days: []int{0, 3}, StartDate: now, EndDate: later}, true},
		{"day above seven", RecurringPattern{Days: []int{8}, StartDate: now, EndDate: later}, true},
		{"duplicate day", RecurringPattern{Days: []int{2, 2}, StartDate: now, EndDate: later}, true},
		{"end before start", RecurringPattern{Days: []int{1}, StartDate: later, EndDate: now}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("validate() error = %v, want ErrValidation", err)
			}
		})
	}
}
