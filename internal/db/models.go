package db

import "time"

// Product is one row of the products collection. Every document field is
// nullable because the store does not enforce a schema; validation happens
// in the reminder pipeline.
type Product struct {
	ID           string  `json:"id"`
	Product      *string `json:"product,omitempty"`
	Expiry       *string `json:"expiry,omitempty"`
	Owner        *string `json:"owner,omitempty"`
	RemindBefore *string `json:"remind_before,omitempty"`
}

// RunState records the calendar day (YYYY-MM-DD) of the last sweep.
type RunState struct {
	Date      string    `json:"date"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RunStateKey identifies the reminder sweep's row in run_state.
const RunStateKey = "expiry_reminder"

// StringPtr is a small helper for building Product literals.
func StringPtr(s string) *string {
	return &s
}
