package reminder

// Group is every match belonging to one owner, in discovery order.
type Group struct {
	Owner   string
	Matches []Match
}

// Products returns the product names in the group.
func (g Group) Products() []string {
	names := make([]string, len(g.Matches))
	for i, m := range g.Matches {
		names[i] = m.Product
	}
	return names
}

// GroupByOwner partitions matches by owner. Groups are ordered by the first
// appearance of their owner and keep the relative order of their matches.
// Matches without an owner are dropped.
func GroupByOwner(matches []Match) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, m := range matches {
		if m.Owner == "" {
			continue
		}
		i, ok := index[m.Owner]
		if !ok {
			i = len(groups)
			index[m.Owner] = i
			groups = append(groups, Group{Owner: m.Owner})
		}
		groups[i].Matches = append(groups[i].Matches, m)
	}

	return groups
}
