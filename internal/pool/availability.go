package pool

// Availability summarises a pool.
type Availability struct {
	Total     int
	Available int

	// AvailableUnits is the Available subsequence sorted ascending by suffix.
	AvailableUnits []SubUnit
}

// Unavailable returns Total - Available.
func (a Availability) Unavailable() int {
	return a.Total - a.Available
}

// Names returns the names of the available sub-units in sorted order.
func (a Availability) Names() []string {
	names := make([]string, len(a.AvailableUnits))
	for i, u := range a.AvailableUnits {
		names[i] = u.Name
	}
	return names
}

// Query derives availability for p. A nil pool yields all zeroes.
func Query(p *Pool) Availability {
	if p == nil || p.SubUnits == nil {
		return Availability{AvailableUnits: []SubUnit{}}
	}
	avail := make([]SubUnit, 0, len(p.SubUnits))
	for _, u := range p.SubUnits {
		if u.Status == Available {
			avail = append(avail, u)
		}
	}
	SortBySuffix(avail)
	return Availability{
		Total:          len(p.SubUnits),
		Available:      len(avail),
		AvailableUnits: avail,
	}
}
