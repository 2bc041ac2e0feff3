package pool

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Status is the availability state of a single sub-unit.
type Status string

const (
	Available   Status = "Available"
	Unavailable Status = "Unavailable"
)

var (
	// ErrInsufficientAvailable is returned when fewer Available sub-units exist
	// than a removal asks for. The pool is left unchanged.
	ErrInsufficientAvailable = errors.New("insufficient available sub-units")

	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// SubUnit is one individually tracked instance of a base SKU.
type SubUnit struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Pool is the full set of sub-units for one base SKU.
type Pool struct {
	SKU      string
	SubUnits []SubUnit

	// Version is bumped by the store on every successful update.
	Version int64
}

// New returns an empty pool for sku.
func New(sku string) *Pool {
	return &Pool{SKU: sku, SubUnits: []SubUnit{}}
}

// FormatName builds the sub-unit name for sequence number seq.
func FormatName(sku string, seq int) string {
	return fmt.Sprintf("%s-%04d", sku, seq)
}

// Suffix parses the numeric suffix after the last '-'.
// Missing or non-numeric suffixes parse as 0.
func Suffix(name string) int {
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// BaseSKU strips the numeric suffix from a sub-unit name.
func BaseSKU(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return name
	}
	return name[:i]
}

// SortBySuffix orders sub-units ascending by numeric suffix. The sort is
// stable so entries sharing suffix 0 keep their storage order.
func SortBySuffix(units []SubUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		return Suffix(units[i].Name) < Suffix(units[j].Name)
	})
}

// MaxSuffix returns the highest suffix across the entire pool.
func (p *Pool) MaxSuffix() int {
	max := 0
	for _, u := range p.SubUnits {
		if n := Suffix(u.Name); n > max {
			max = n
		}
	}
	return max
}

// Append adds k new Available sub-units numbered from MaxSuffix()+1 and
// returns their names in creation order.
func (p *Pool) Append(k int) []string {
	if k <= 0 {
		return nil
	}
	next := p.MaxSuffix() + 1
	names := make([]string, 0, k)
	for i := 0; i < k; i++ {
		name := FormatName(p.SKU, next+i)
		p.SubUnits = append(p.SubUnits, SubUnit{Name: name, Status: Available})
		names = append(names, name)
	}
	return names
}

// setStatus flips the named sub-units to status and returns the names that
// were found. Unknown names are returned separately.
func (p *Pool) setStatus(names []string, status Status) (found, missing []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	seen := make(map[string]bool, len(names))
	for i := range p.SubUnits {
		if want[p.SubUnits[i].Name] {
			p.SubUnits[i].Status = status
			seen[p.SubUnits[i].Name] = true
		}
	}
	for _, n := range names {
		if seen[n] {
			found = append(found, n)
		} else {
			missing = append(missing, n)
		}
	}
	return found, missing
}
