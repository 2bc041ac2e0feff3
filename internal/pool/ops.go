package pool

// Reservation is the outcome of Reserve.
type Reservation struct {
	// Names are the reserved sub-units in selection order: existing available
	// ones first, then any created to cover the shortfall.
	Names []string

	// Created lists sub-units synthesized because too few were available.
	Created []string
}

// Reserve takes the first quantity Available sub-units (suffix order), creates
// fresh ones for any shortfall, and marks all of them Unavailable.
func (p *Pool) Reserve(quantity int) (Reservation, error) {
	if quantity <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	avail := Query(p)
	take := quantity
	if avail.Available < take {
		take = avail.Available
	}
	names := make([]string, 0, quantity)
	for _, u := range avail.AvailableUnits[:take] {
		names = append(names, u.Name)
	}
	var created []string
	if short := quantity - take; short > 0 {
		created = p.Append(short)
		names = append(names, created...)
	}
	p.setStatus(names, Unavailable)
	return Reservation{Names: names, Created: created}, nil
}

// Release flips the named sub-units back to Available. Names not present in
// the pool are returned as missing; releasing an already Available sub-unit is
// a no-op.
func (p *Pool) Release(names []string) (released, missing []string) {
	return p.setStatus(names, Available)
}

// RemoveAvailable deletes the last quantity Available sub-units (highest
// suffixes first). It never removes an Unavailable sub-unit: if fewer than
// quantity are Available it returns ErrInsufficientAvailable and leaves the
// pool untouched.
func (p *Pool) RemoveAvailable(quantity int) ([]string, error) {
	if quantity <= 0 {
		return nil, nil
	}
	avail := Query(p)
	if avail.Available < quantity {
		return nil, ErrInsufficientAvailable
	}
	victims := make([]string, 0, quantity)
	drop := make(map[string]bool, quantity)
	for i := avail.Available - 1; i >= avail.Available-quantity; i-- {
		name := avail.AvailableUnits[i].Name
		victims = append(victims, name)
		drop[name] = true
	}
	kept := p.SubUnits[:0]
	for _, u := range p.SubUnits {
		if drop[u.Name] && u.Status == Available {
			delete(drop, u.Name)
			continue
		}
		kept = append(kept, u)
	}
	p.SubUnits = kept
	return victims, nil
}

// TopUpTo appends Available sub-units until the available count reaches
// external. It never removes.
func (p *Pool) TopUpTo(external int) []string {
	if gap := external - Query(p).Available; gap > 0 {
		return p.Append(gap)
	}
	return nil
}

// Adjustment describes what ReconcileTo changed.
type Adjustment struct {
	Added   []string
	Removed []string
}

// Changed reports whether the adjustment touched the pool.
func (a Adjustment) Changed() bool {
	return len(a.Added) > 0 || len(a.Removed) > 0
}

// ReconcileTo adds or removes Available sub-units so the available count
// equals external. Calling it again with the same external is a no-op.
func (p *Pool) ReconcileTo(external int) (Adjustment, error) {
	if external < 0 {
		external = 0
	}
	local := Query(p).Available
	switch {
	case local < external:
		return Adjustment{Added: p.Append(external - local)}, nil
	case local > external:
		removed, err := p.RemoveAvailable(local - external)
		if err != nil {
			return Adjustment{}, err
		}
		return Adjustment{Removed: removed}, nil
	default:
		return Adjustment{}, nil
	}
}

// TrimTo removes Available sub-units while the available count exceeds
// external. Used after a release when the platform reports fewer units than
// the pool now holds.
func (p *Pool) TrimTo(external int) ([]string, error) {
	if excess := Query(p).Available - external; excess > 0 {
		return p.RemoveAvailable(excess)
	}
	return nil, nil
}

// Clone returns a deep copy of p.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	units := make([]SubUnit, len(p.SubUnits))
	copy(units, p.SubUnits)
	return &Pool{SKU: p.SKU, SubUnits: units, Version: p.Version}
}
