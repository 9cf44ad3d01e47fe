package concorsi

import (
	"errors"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/concoro-it/concoro/cache"
)

// Page size bounds.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
	// MaxRegions is the largest "in" list a request may carry.
	MaxRegions = 30
)

// PrimaryKind tags the dimension of a PrimaryFilter.
type PrimaryKind string

const (
	PrimaryNone     PrimaryKind = ""
	PrimaryRegion   PrimaryKind = "region"
	PrimarySector   PrimaryKind = "sector"
	PrimaryEnte     PrimaryKind = "ente"
	PrimaryRegime   PrimaryKind = "regime"
	PrimaryDeadline PrimaryKind = "deadline"
)

// PrimaryFilter is the one filter applied first. Only PrimaryDeadline is a
// range; every other kind is an equality.
type PrimaryFilter struct {
	Kind  PrimaryKind `json:"kind,omitempty"`
	Value string      `json:"value,omitempty"`
}

// ByRegion returns a region equality primary filter.
func ByRegion(region string) PrimaryFilter { return PrimaryFilter{Kind: PrimaryRegion, Value: region} }

// BySector returns a sector equality primary filter.
func BySector(sector string) PrimaryFilter { return PrimaryFilter{Kind: PrimarySector, Value: sector} }

// ByEnte returns an ente equality primary filter.
func ByEnte(ente string) PrimaryFilter { return PrimaryFilter{Kind: PrimaryEnte, Value: ente} }

// ByRegime returns a regime equality primary filter.
func ByRegime(regime string) PrimaryFilter { return PrimaryFilter{Kind: PrimaryRegime, Value: regime} }

// ByDeadline returns a deadline range primary filter.
func ByDeadline(bucket DeadlineBucket) PrimaryFilter {
	return PrimaryFilter{Kind: PrimaryDeadline, Value: string(bucket)}
}

// IsZero reports whether no primary filter is set.
func (p PrimaryFilter) IsZero() bool { return p.Kind == PrimaryNone }

func (p PrimaryFilter) normalize() PrimaryFilter {
	p.Kind = PrimaryKind(strings.ToLower(strings.TrimSpace(string(p.Kind))))
	switch p.Kind {
	case PrimaryRegion:
		p.Value = NormalizeRegion(p.Value)
	case PrimaryRegime:
		p.Value = NormalizeRegime(p.Value)
	case PrimaryDeadline:
		p.Value = string(NormalizeDeadline(p.Value))
	default:
		p.Value = collapse(p.Value)
	}
	if p.Kind == PrimaryNone {
		p.Value = ""
	}
	return p
}

// Validate implements validation.Validatable.
func (p PrimaryFilter) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Kind, validation.In(PrimaryRegion, PrimarySector, PrimaryEnte, PrimaryRegime, PrimaryDeadline)),
		validation.Field(&p.Value,
			validation.When(p.Kind != PrimaryNone, validation.Required),
			validation.When(p.Kind == PrimaryDeadline, validation.In(string(DeadlineToday), string(DeadlineWeek), string(DeadlineMonth))),
		),
	)
}

// DeadlineBucket is a relative deadline window.
type DeadlineBucket string

const (
	DeadlineNone  DeadlineBucket = ""
	DeadlineToday DeadlineBucket = "today"
	DeadlineWeek  DeadlineBucket = "week"
	DeadlineMonth DeadlineBucket = "month"
)

// NormalizeDeadline maps bucket labels, Italian included, to a DeadlineBucket.
func NormalizeDeadline(s string) DeadlineBucket {
	switch fold(collapse(s)) {
	case "":
		return DeadlineNone
	case "today", "oggi":
		return DeadlineToday
	case "week", "settimana", "7d":
		return DeadlineWeek
	case "month", "mese", "30d":
		return DeadlineMonth
	}
	return DeadlineBucket(fold(collapse(s)))
}

// Range returns the half-open interval [from, to) of the bucket relative to
// now. End of day is computed in now's location.
func (b DeadlineBucket) Range(now time.Time) (from, to time.Time, ok bool) {
	switch b {
	case DeadlineToday:
		y, m, d := now.Date()
		return now, time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()), true
	case DeadlineWeek:
		return now, now.Add(7 * 24 * time.Hour), true
	case DeadlineMonth:
		return now, now.Add(30 * 24 * time.Hour), true
	}
	return time.Time{}, time.Time{}, false
}

// SortKey selects the result ordering.
type SortKey string

const (
	SortPublishedDesc SortKey = "published_desc"
	SortPublishedAsc  SortKey = "published_asc"
	SortDeadlineAsc   SortKey = "deadline_asc"
	SortDeadlineDesc  SortKey = "deadline_desc"
	SortPositionsDesc SortKey = "positions_desc"
	SortTitleAsc      SortKey = "title_asc"
)

var sortAliases = map[string]SortKey{
	"":            SortPublishedDesc,
	"recent":      SortPublishedDesc,
	"newest":      SortPublishedDesc,
	"oldest":      SortPublishedAsc,
	"deadline":    SortDeadlineAsc,
	"scadenza":    SortDeadlineAsc,
	"closing":     SortDeadlineAsc,
	"posti":       SortPositionsDesc,
	"positions":   SortPositionsDesc,
	"title":       SortTitleAsc,
	"alphabetic":  SortTitleAsc,
	"alfabetico":  SortTitleAsc,
	"publication": SortPublishedDesc,
}

// FilterRequest is a structured listing query. Use Normalize before reading
// its fields; the zero value asks for the newest open concorsi.
type FilterRequest struct {
	Primary        PrimaryFilter  `json:"primary,omitempty"`
	Status         Status         `json:"status,omitempty"`
	Regions        []string       `json:"regions,omitempty"`
	Ente           string         `json:"ente,omitempty"`
	Sector         string         `json:"sector,omitempty"`
	Regime         string         `json:"regime,omitempty"`
	Deadline       DeadlineBucket `json:"deadline,omitempty"`
	PublishedAfter *time.Time     `json:"published_after,omitempty"`
	Keyword        string         `json:"keyword,omitempty"`
	Sort           SortKey        `json:"sort,omitempty"`
	Cursor         string         `json:"cursor,omitempty"`
	Page           int            `json:"page,omitempty"`
	PageSize       int            `json:"page_size,omitempty"`
	IncludeTotal   bool           `json:"include_total,omitempty"`
}

// Normalize returns the canonical form of r: labels folded and mapped through
// the synonym tables, defaults applied, the page size capped and secondary
// filters on the primary dimension dropped. Normalize is idempotent.
func (r FilterRequest) Normalize() FilterRequest {
	r.Primary = r.Primary.normalize()
	r.Status = NormalizeStatus(string(r.Status))
	r.Regions = NormalizeRegions(r.Regions)
	r.Ente = collapse(r.Ente)
	r.Sector = collapse(r.Sector)
	r.Regime = NormalizeRegime(r.Regime)
	r.Deadline = NormalizeDeadline(string(r.Deadline))
	r.Keyword = strings.Join(Tokenize(r.Keyword), " ")
	r.Cursor = strings.TrimSpace(r.Cursor)

	if key, ok := sortAliases[fold(collapse(string(r.Sort)))]; ok {
		r.Sort = key
	} else {
		r.Sort = SortKey(fold(collapse(string(r.Sort))))
	}

	if r.PublishedAfter != nil {
		t := NormalizeTime(*r.PublishedAfter)
		r.PublishedAfter = &t
	}

	if r.PageSize == 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}

	switch r.Primary.Kind {
	case PrimaryRegion:
		r.Regions = nil
	case PrimaryEnte:
		r.Ente = ""
	case PrimarySector:
		r.Sector = ""
	case PrimaryRegime:
		r.Regime = ""
	case PrimaryDeadline:
		r.Deadline = DeadlineNone
	}

	return r
}

// Validate checks a normalized request. Failures are *FilterError values
// wrapping ErrInvalidFilter.
func (r FilterRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Primary),
		validation.Field(&r.Status, validation.Required, validation.In(StatusOpen, StatusClosed, StatusAll)),
		validation.Field(&r.Regions, validation.Length(0, MaxRegions), validation.Each(validation.Required)),
		validation.Field(&r.Deadline, validation.In(DeadlineToday, DeadlineWeek, DeadlineMonth)),
		validation.Field(&r.Sort, validation.In(SortPublishedDesc, SortPublishedAsc, SortDeadlineAsc, SortDeadlineDesc, SortPositionsDesc, SortTitleAsc)),
		validation.Field(&r.Page, validation.Min(0)),
		validation.Field(&r.PageSize, validation.Min(1), validation.Max(MaxPageSize)),
	)
	if err != nil {
		return toFilterError(err)
	}

	if r.Cursor != "" && r.Page > 0 {
		return &FilterError{Field: "cursor", Message: "cannot be combined with page"}
	}
	return nil
}

// toFilterError reports the first failing field, in name order.
func toFilterError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &FilterError{Field: "request", Message: err.Error()}
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	field := fields[0]
	inner := errs[field]
	var nested validation.Errors
	if errors.As(inner, &nested) {
		sub := toFilterError(nested).(*FilterError)
		return &FilterError{Field: field + "." + sub.Field, Message: sub.Message}
	}
	return &FilterError{Field: field, Message: inner.Error()}
}

// KeyParams returns the cache key parameters of a normalized request.
func (r FilterRequest) KeyParams() cache.Params {
	params := cache.Params{
		"status":    string(r.Status),
		"regions":   r.Regions,
		"ente":      FoldLabel(r.Ente),
		"sector":    FoldLabel(r.Sector),
		"regime":    r.Regime,
		"deadline":  string(r.Deadline),
		"keyword":   r.Keyword,
		"sort":      string(r.Sort),
		"cursor":    r.Cursor,
		"page_size": r.PageSize,
	}
	if !r.Primary.IsZero() {
		value := r.Primary.Value
		if r.Primary.Kind == PrimaryEnte || r.Primary.Kind == PrimarySector {
			value = FoldLabel(value)
		}
		params["primary"] = string(r.Primary.Kind) + "=" + value
	}
	if r.PublishedAfter != nil {
		params["published_after"] = *r.PublishedAfter
	}
	if r.Page > 0 {
		params["page"] = r.Page
	}
	if r.IncludeTotal {
		params["include_total"] = true
	}
	return params
}

// DecodeMsgpack restores normalized timestamps on requests read back from the
// remote cache.
func (r *FilterRequest) DecodeMsgpack(dec *msgpack.Decoder) error {
	type plain FilterRequest
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*r = FilterRequest(p)
	if r.PublishedAfter != nil {
		t := NormalizeTime(*r.PublishedAfter)
		r.PublishedAfter = &t
	}
	return nil
}
