package expiry

import "fmt"

// Policy decides whether a product with the given days left is due a
// reminder today. threshold is the parsed remind-before value and is only
// meaningful when RequiresThreshold reports true.
type Policy interface {
	Name() string
	RequiresThreshold() bool
	Matches(daysLeft, threshold int) bool
}

// FixedSet matches a fixed set of milestones shared by every product.
type FixedSet struct {
	milestones map[int]struct{}
	ordered    []int
}

// NewFixedSet builds a FixedSet policy. Duplicate milestones are ignored.
func NewFixedSet(milestones []int) *FixedSet {
	p := &FixedSet{milestones: make(map[int]struct{}, len(milestones))}
	for _, m := range milestones {
		if _, ok := p.milestones[m]; ok {
			continue
		}
		p.milestones[m] = struct{}{}
		p.ordered = append(p.ordered, m)
	}
	return p
}

func (p *FixedSet) Name() string { return "fixed" }

func (p *FixedSet) RequiresThreshold() bool { return false }

func (p *FixedSet) Matches(daysLeft, _ int) bool {
	_, ok := p.milestones[daysLeft]
	return ok
}

// Milestones returns the configured milestones in configuration order.
func (p *FixedSet) Milestones() []int {
	return append([]int(nil), p.ordered...)
}

func (p *FixedSet) String() string {
	return fmt.Sprintf("fixed%v", p.ordered)
}

// PerRecord matches when days left equals the product's own threshold.
// A missed day is never caught up.
type PerRecord struct{}

func (PerRecord) Name() string { return "per_record" }

func (PerRecord) RequiresThreshold() bool { return true }

func (PerRecord) Matches(daysLeft, threshold int) bool {
	return daysLeft == threshold
}
