package models

import "time"

// ClientSecurityRecord is the abuse history of one client identity
type ClientSecurityRecord struct {
	ClientID       string     `json:"clientId"`
	Attempts       int        `json:"attempts"`
	FailedAttempts int        `json:"failedAttempts"`
	FirstSeen      time.Time  `json:"firstSeen"`
	LastAttempt    time.Time  `json:"lastAttempt"`
	IsBlocked      bool       `json:"isBlocked"`
	BlockUntil     *time.Time `json:"blockUntil,omitempty"`
}

// EvaluateBlock reports whether the record is blocked at now. A block whose
// BlockUntil has elapsed is cleared in the returned record together with the
// consecutive failure count. The input record is never modified.
func EvaluateBlock(rec ClientSecurityRecord, now time.Time) (bool, ClientSecurityRecord) {
	if !rec.IsBlocked {
		return false, rec
	}
	if rec.BlockUntil != nil && now.Before(*rec.BlockUntil) {
		return true, rec
	}

	rec.IsBlocked = false
	rec.BlockUntil = nil
	rec.FailedAttempts = 0
	return false, rec
}

// AttackDetectionState holds the process-wide failure counters for one alert window
type AttackDetectionState struct {
	TotalAttempts  int64      `json:"totalAttempts"`
	FailedAttempts int64      `json:"failedAttempts"`
	LastAlert      *time.Time `json:"lastAlert,omitempty"`
}

// AttackAlert is emitted when a window's failure count crosses the alert threshold
type AttackAlert struct {
	ID             string    `json:"id"`
	FailedAttempts int64     `json:"failedAttempts"`
	TotalAttempts  int64     `json:"totalAttempts"`
	Threshold      int64     `json:"threshold"`
	WindowEnd      time.Time `json:"windowEnd"`
}
