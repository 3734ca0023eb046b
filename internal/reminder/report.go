package reminder

import (
	"time"

	"github.com/google/uuid"
)

// Skip records a product document excluded from the sweep.
type Skip struct {
	ProductID string
	Reason    SkipReason
}

// Delivery is the outcome of one message.
type Delivery struct {
	Recipient string
	Subject   string
	Products  []string
	Err       error
}

func (d Delivery) OK() bool { return d.Err == nil }

// Report collects everything a sweep did. A report with AlreadyRan set
// describes a sweep that stopped at the run-once guard.
type Report struct {
	ID         uuid.UUID
	Date       string
	StartedAt  time.Time
	FinishedAt time.Time
	AlreadyRan bool
	Scanned    int
	Matched    int
	Skipped    []Skip
	Deliveries []Delivery
}

func (r *Report) Sent() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.OK() {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Deliveries) - r.Sent()
}

// FailedRecipients lists recipients with at least one failed delivery, in
// delivery order without duplicates.
func (r *Report) FailedRecipients() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.Deliveries {
		if d.OK() || seen[d.Recipient] {
			continue
		}
		seen[d.Recipient] = true
		out = append(out, d.Recipient)
	}
	return out
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary is the serialisable view of a Report.
type Summary struct {
	SweepID          string         `json:"sweep_id"`
	Date             string         `json:"date"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	AlreadyRan       bool           `json:"already_ran"`
	Scanned          int            `json:"scanned"`
	Matched          int            `json:"matched"`
	Skipped          map[string]int `json:"skipped"`
	Sent             int            `json:"sent"`
	Failed           int            `json:"failed"`
	FailedRecipients []string       `json:"failed_recipients,omitempty"`
}

func (r *Report) Summary() Summary {
	skipped := make(map[string]int)
	for _, s := range r.Skipped {
		skipped[string(s.Reason)]++
	}
	return Summary{
		SweepID:          r.ID.String(),
		Date:             r.Date,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		AlreadyRan:       r.AlreadyRan,
		Scanned:          r.Scanned,
		Matched:          r.Matched,
		Skipped:          skipped,
		Sent:             r.Sent(),
		Failed:           r.Failed(),
		FailedRecipients: r.FailedRecipients(),
	}
}
