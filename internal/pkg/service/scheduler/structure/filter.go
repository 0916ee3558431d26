package structure

// Filter is a collected set of control directives for one axis, rows or columns.
// "only" takes absolute precedence over "from"/"until" on the same axis.
type Filter struct {
	only  map[int]bool
	from  *int
	until *int
}

func newFilter() *Filter {
	return &Filter{only: make(map[int]bool)}
}

func (f *Filter) addOnly(index int) {
	f.only[index] = true
}

func (f *Filter) addFrom(index int) {
	if f.from == nil || index < *f.from {
		f.from = &index
	}
}

func (f *Filter) addUntil(index int) {
	if f.until == nil || index > *f.until {
		f.until = &index
	}
}

// IsEmpty returns true when no directive was collected, the full range is processed.
func (f *Filter) IsEmpty() bool {
	return len(f.only) == 0 && f.from == nil && f.until == nil
}

// Allows returns true when the index passes the directives.
func (f *Filter) Allows(index int) bool {
	if len(f.only) > 0 {
		return f.only[index]
	}
	if f.from != nil && index < *f.from {
		return false
	}
	if f.until != nil && index > *f.until {
		return false
	}
	return true
}

// AllowsAny returns true when at least one of the indexes passes, see WorkGroup member columns.
func (f *Filter) AllowsAny(indexes []int) bool {
	for _, index := range indexes {
		if f.Allows(index) {
			return true
		}
	}
	return false
}
