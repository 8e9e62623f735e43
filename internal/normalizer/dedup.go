package normalizer

// Deduplicator collapses candidates sharing a canonical title. The candidate
// with the higher resolution confidence wins; ties keep the earlier one.
// Output order is the first listing appearance of each title.
type Deduplicator struct {
	index      map[string]int
	kept       []Candidate
	duplicates int
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{index: make(map[string]int)}
}

// Add offers c. Candidates must be added in listing order.
func (d *Deduplicator) Add(c Candidate) {
	key := c.Article.Title

	i, seen := d.index[key]
	if !seen {
		d.index[key] = len(d.kept)
		d.kept = append(d.kept, c)

		return
	}

	d.duplicates++

	if c.Confidence > d.kept[i].Confidence {
		// Keep the slot of the first appearance.
		c.Order = d.kept[i].Order
		d.kept[i] = c
	}
}

// Candidates returns the surviving candidates in first-appearance order.
func (d *Deduplicator) Candidates() []Candidate {
	return d.kept
}

// Duplicates returns how many candidates were collapsed.
func (d *Deduplicator) Duplicates() int {
	return d.duplicates
}
