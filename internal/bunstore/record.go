package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/concoro-it/concoro/concorsi"
)

// Record is the row shape of the concorsi table. Keywords are stored as a JSON
// array and matched with json_each. EnteKey and SectorKey hold the folded
// labels equality filters compare against.
type Record struct {
	bun.BaseModel `bun:"table:concorsi,alias:c"`

	ID          string     `bun:"id,pk"`
	Title       string     `bun:"title,notnull"`
	Ente        string     `bun:"ente,notnull"`
	EnteKey     string     `bun:"ente_key,notnull"`
	Region      string     `bun:"region"`
	Province    string     `bun:"province"`
	Sector      string     `bun:"sector"`
	SectorKey   string     `bun:"sector_key"`
	Regime      string     `bun:"regime"`
	Status      string     `bun:"status,notnull"`
	PublishedAt time.Time  `bun:"published_at,notnull"`
	Deadline    *time.Time `bun:"deadline"`
	Positions   int        `bun:"positions,notnull"`
	URL         string     `bun:"url"`
	Summary     string     `bun:"summary"`
	Keywords    []string   `bun:"keywords"`
	UpdatedAt   time.Time  `bun:"updated_at"`
}

func fromConcorso(c concorsi.Concorso) *Record {
	c = c.Normalize()
	return &Record{
		ID:          c.ID,
		Title:       c.Title,
		Ente:        c.Ente,
		EnteKey:     concorsi.FoldLabel(c.Ente),
		Region:      c.Region,
		Province:    c.Province,
		Sector:      c.Sector,
		SectorKey:   concorsi.FoldLabel(c.Sector),
		Regime:      c.Regime,
		Status:      string(c.Status),
		PublishedAt: c.PublishedAt,
		Deadline:    c.Deadline,
		Positions:   c.Positions,
		URL:         c.URL,
		Summary:     c.Summary,
		Keywords:    c.Keywords,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Concorso converts the row back to the domain type.
func (r *Record) Concorso() concorsi.Concorso {
	return concorsi.Concorso{
		ID:          r.ID,
		Title:       r.Title,
		Ente:        r.Ente,
		Region:      r.Region,
		Province:    r.Province,
		Sector:      r.Sector,
		Regime:      r.Regime,
		Status:      concorsi.Status(r.Status),
		PublishedAt: r.PublishedAt,
		Deadline:    r.Deadline,
		Positions:   r.Positions,
		URL:         r.URL,
		Summary:     r.Summary,
		Keywords:    r.Keywords,
		UpdatedAt:   r.UpdatedAt,
	}.Normalize()
}
