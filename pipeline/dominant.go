package pipeline

// Tally accumulates category counts while preserving first-seen order, which
// makes the tie-break deterministic for a given input ordering.
type Tally struct {
	counts map[Category]int
	order  []Category
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[Category]int)}
}

// Add records one feature of the given category.
func (t *Tally) Add(c Category) {
	if _, seen := t.counts[c]; !seen {
		t.order = append(t.order, c)
	}
	t.counts[c]++
}

// Count returns the number of features recorded for the category.
func (t *Tally) Count(c Category) int {
	return t.counts[c]
}

// Total returns the number of features recorded across all categories.
func (t *Tally) Total() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

// Dominant picks the category with the strictly highest count; ties break in
// first-seen order. A winning point category is demoted to the best non-point
// category when one has any members, since point markers often outnumber the
// land-use features that actually describe an area. The second return is
// false when the tally is empty.
func (t *Tally) Dominant() (Category, bool) {
	if len(t.order) == 0 {
		return "", false
	}

	winner := t.best(func(Category) bool { return true })
	if winner == CategoryPoint {
		if demoted := t.best(func(c Category) bool { return c != CategoryPoint }); demoted != "" {
			winner = demoted
		}
	}
	return winner, true
}

func (t *Tally) best(eligible func(Category) bool) Category {
	var winner Category
	bestCount := 0
	for _, c := range t.order {
		if !eligible(c) {
			continue
		}
		if t.counts[c] > bestCount {
			winner = c
			bestCount = t.counts[c]
		}
	}
	return winner
}
