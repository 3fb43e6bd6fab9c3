package txstate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const depositMarker = "-DEPOSIT-"

// Record is a parsed deposit id: {FAMILY}-DEPOSIT-{index}-{from}-{unix nanos}
type Record struct {
	ID        string
	Family    string
	Index     string
	From      string
	Timestamp time.Time
}

// RecordID builds the id of a deposit pulled at block index from the counter-party
func RecordID(family, index, from string, at time.Time) string {
	return fmt.Sprintf("%s%s%s-%s-%d", family, depositMarker, index, from, at.UnixNano())
}

// ParseRecord splits a deposit id into its fields.
// The counter-party may itself contain hyphens; the index may not.
func ParseRecord(id string) (Record, error) {
	i := strings.Index(id, depositMarker)
	if i <= 0 {
		return Record{}, fmt.Errorf("not a deposit record: %q", id)
	}
	family := id[:i]
	rest := id[i+len(depositMarker):]

	first := strings.IndexByte(rest, '-')
	last := strings.LastIndexByte(rest, '-')
	if first < 0 || first == last {
		return Record{}, fmt.Errorf("malformed deposit record: %q", id)
	}

	ns, err := strconv.ParseInt(rest[last+1:], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("malformed deposit timestamp in %q: %w", id, err)
	}

	return Record{
		ID:        id,
		Family:    family,
		Index:     rest[:first],
		From:      rest[first+1 : last],
		Timestamp: time.Unix(0, ns).UTC(),
	}, nil
}
