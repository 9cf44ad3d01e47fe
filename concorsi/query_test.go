package concorsi

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseQuery(t *testing.T) {
	values := url.Values{
		"q":        {"istruttore amministrativo"},
		"regione":  {"Lazio, lombardia", "Toscana"},
		"ente":     {"Comune di Roma"},
		"settore":  {"Amministrazione"},
		"regime":   {"part-time"},
		"stato":    {"aperto"},
		"scadenza": {"settimana"},
		"sort":     {"scadenza"},
		"page":     {"2"},
		"limit":    {"10"},
		"total":    {"true"},
	}

	got, err := ParseQuery(values)
	if err != nil {
		t.Fatalf("ParseQuery() failed: %v", err)
	}

	want := FilterRequest{
		Keyword:      "istruttore amministrativo",
		Regions:      []string{"Lazio", "lombardia", "Toscana"},
		Ente:         "Comune di Roma",
		Sector:       "Amministrazione",
		Regime:       "part-time",
		Status:       "aperto",
		Deadline:     "settimana",
		Sort:         "scadenza",
		Page:         2,
		PageSize:     10,
		IncludeTotal: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseQuery() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseQuery_PublishedAfter(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{raw: "2025-03-01", want: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{raw: "2025-03-01T10:00:00+01:00", want: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseQuery(url.Values{ParamPublishedAfter: {tt.raw}})
			if err != nil {
				t.Fatalf("ParseQuery() failed: %v", err)
			}
			if got.PublishedAfter == nil || !got.PublishedAfter.Equal(tt.want) {
				t.Errorf("PublishedAfter = %v, want %v", got.PublishedAfter, tt.want)
			}
		})
	}
}

func TestParseQuery_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		field  string
	}{
		{name: "page", values: url.Values{"page": {"two"}}, field: ParamPage},
		{name: "limit", values: url.Values{"limit": {"1.5"}}, field: ParamLimit},
		{name: "total", values: url.Values{"total": {"maybe"}}, field: ParamTotal},
		{name: "date", values: url.Values{"dal": {"01/03/2025"}}, field: ParamPublishedAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.values)
			if !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("expected ErrInvalidFilter, got %v", err)
			}
			var filterErr *FilterError
			if !errors.As(err, &filterErr) || filterErr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestParseQuery_Empty(t *testing.T) {
	got, err := ParseQuery(url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(FilterRequest{}, got); diff != "" {
		t.Errorf("empty query should yield a zero request (-want +got):\n%s", diff)
	}
}
