package concorsi

import (
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Status is the canonical lifecycle state of a concorso.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CHIUSO"
	// StatusAll disables status filtering. It is never stored on a record.
	StatusAll Status = "all"
)

// Canonical work regimes.
const (
	RegimeFullTime = "FULL_TIME"
	RegimePartTime = "PART_TIME"
)

// Concorso is a public-sector job posting.
type Concorso struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Ente        string     `json:"ente"`
	Region      string     `json:"region,omitempty"`
	Province    string     `json:"province,omitempty"`
	Sector      string     `json:"sector,omitempty"`
	Regime      string     `json:"regime,omitempty"`
	Status      Status     `json:"status"`
	PublishedAt time.Time  `json:"published_at"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Positions   int        `json:"positions,omitempty"`
	URL         string     `json:"url,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks the fields required to store a record.
func (c Concorso) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&c.Ente, validation.Required),
		validation.Field(&c.Status, validation.Required, validation.In(StatusOpen, StatusClosed)),
		validation.Field(&c.Positions, validation.Min(0)),
	)
}

// Normalize returns a copy with every timestamp in UTC at millisecond precision.
// Applying it twice yields the same value.
func (c Concorso) Normalize() Concorso {
	c.PublishedAt = NormalizeTime(c.PublishedAt)
	c.UpdatedAt = NormalizeTime(c.UpdatedAt)
	if c.Deadline != nil {
		d := NormalizeTime(*c.Deadline)
		c.Deadline = &d
	}
	if c.Keywords != nil {
		c.Keywords = append([]string(nil), c.Keywords...)
	}
	return c
}

// DecodeMsgpack restores normalized timestamps on values read back from the
// remote cache, which decodes times in the local zone.
func (c *Concorso) DecodeMsgpack(dec *msgpack.Decoder) error {
	type plain Concorso
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = Concorso(p).Normalize()
	return nil
}

// NormalizeTime converts t to UTC and truncates it to milliseconds. The zero
// time is returned unchanged.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// BuildKeywords derives the keyword index of c from its descriptive fields.
// The result is sorted and free of duplicates.
func BuildKeywords(c Concorso) []string {
	seen := map[string]struct{}{}
	for _, text := range []string{c.Title, c.Ente, c.Sector, c.Region, c.Province, c.Summary} {
		for _, token := range Tokenize(text) {
			seen[token] = struct{}{}
		}
	}

	keywords := make([]string, 0, len(seen))
	for token := range seen {
		keywords = append(keywords, token)
	}
	sort.Strings(keywords)
	return keywords
}
