package concorsi

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var planNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func TestBuildPlan_Clauses(t *testing.T) {
	plan, err := BuildPlan(FilterRequest{
		Primary: ByEnte("Comune di Roma"),
		Regions: []string{"Lazio", "Lombardia"},
		Sector:  "Informatica",
		Keyword: "funzionario informatico",
	}, planNow)
	if err != nil {
		t.Fatalf("BuildPlan() failed: %v", err)
	}

	want := []Clause{
		{Field: FieldEnte, Op: OpEqual, Value: "comune di roma"},
		{Field: FieldRegion, Op: OpIn, Value: []string{"Lazio", "Lombardia"}},
		{Field: FieldSector, Op: OpEqual, Value: "informatica"},
		{Field: FieldStatus, Op: OpEqual, Value: "OPEN"},
		{Field: FieldKeywords, Op: OpArrayContains, Value: "funzionario"},
		{Field: FieldKeywords, Op: OpArrayContains, Value: "informatico"},
	}
	if diff := cmp.Diff(want, plan.Clauses); diff != "" {
		t.Errorf("clauses mismatch (-want +got):\n%s", diff)
	}

	wantOrders := []Order{{FieldPublishedAt, Desc}, {FieldID, Asc}}
	if diff := cmp.Diff(wantOrders, plan.Orders); diff != "" {
		t.Errorf("orders mismatch (-want +got):\n%s", diff)
	}
	if plan.Limit != DefaultPageSize+1 || plan.PageSize != DefaultPageSize {
		t.Errorf("limit = %d page size = %d", plan.Limit, plan.PageSize)
	}
}

func TestBuildPlan_StatusAllHasNoStatusClause(t *testing.T) {
	plan, err := BuildPlan(FilterRequest{Status: "tutti"}, planNow)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range plan.Clauses {
		if c.Field == FieldStatus {
			t.Errorf("unexpected status clause %+v", c)
		}
	}
}

func TestBuildPlan_RangeOrderingPrecedesSort(t *testing.T) {
	plan, err := BuildPlan(FilterRequest{Primary: ByDeadline(DeadlineWeek), Sort: SortPositionsDesc}, planNow)
	if err != nil {
		t.Fatal(err)
	}

	want := []Order{{FieldDeadline, Asc}, {FieldPositions, Desc}, {FieldID, Asc}}
	if diff := cmp.Diff(want, plan.Orders); diff != "" {
		t.Errorf("orders mismatch (-want +got):\n%s", diff)
	}

	field, ok := plan.RangeField()
	if !ok || field != FieldDeadline {
		t.Errorf("RangeField() = %q, %v", field, ok)
	}

	after := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	published, err := BuildPlan(FilterRequest{PublishedAfter: &after, Sort: SortTitleAsc}, planNow)
	if err != nil {
		t.Fatal(err)
	}
	want = []Order{{FieldPublishedAt, Asc}, {FieldTitle, Asc}, {FieldID, Asc}}
	if diff := cmp.Diff(want, published.Orders); diff != "" {
		t.Errorf("title order should follow the published_at range (-want +got):\n%s", diff)
	}

	sameField, err := BuildPlan(FilterRequest{Deadline: DeadlineWeek, Sort: SortDeadlineDesc}, planNow)
	if err != nil {
		t.Fatal(err)
	}
	want = []Order{{FieldDeadline, Desc}, {FieldID, Asc}}
	if diff := cmp.Diff(want, sameField.Orders); diff != "" {
		t.Errorf("sorting on the range field needs no extra order (-want +got):\n%s", diff)
	}
}

func TestBuildPlan_TwoRangesRejected(t *testing.T) {
	after := planNow.Add(-48 * time.Hour)

	tests := []FilterRequest{
		{Deadline: DeadlineToday, PublishedAfter: &after},
		{Primary: ByDeadline(DeadlineMonth), PublishedAfter: &after},
	}
	for _, req := range tests {
		_, err := BuildPlan(req, planNow)
		if !errors.Is(err, ErrInvalidFilterCombination) {
			t.Errorf("expected ErrInvalidFilterCombination, got %v", err)
		}
		var filterErr *FilterError
		if !errors.As(err, &filterErr) || filterErr.Field != string(FieldPublishedAt) {
			t.Errorf("expected published_at field error, got %v", err)
		}
	}

	if _, err := BuildPlan(FilterRequest{PublishedAfter: &after}, planNow); err != nil {
		t.Errorf("a single range must be accepted: %v", err)
	}
}

func TestBuildPlan_PageOffset(t *testing.T) {
	plan, err := BuildPlan(FilterRequest{Page: 3, PageSize: 10}, planNow)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Offset != 20 || plan.Limit != 11 {
		t.Errorf("offset = %d limit = %d", plan.Offset, plan.Limit)
	}
}

func TestPlan_MatchesAndCompare(t *testing.T) {
	d1 := planNow.Add(24 * time.Hour)
	d2 := planNow.Add(72 * time.Hour)
	late := planNow.Add(40 * 24 * time.Hour)

	docs := []Concorso{
		{ID: "b", Status: StatusOpen, Region: "Lazio", Deadline: &d2},
		{ID: "a", Status: StatusOpen, Region: "Lazio", Deadline: &d2},
		{ID: "c", Status: StatusOpen, Region: "Lazio", Deadline: &d1},
		{ID: "d", Status: StatusOpen, Region: "Lazio"},
		{ID: "e", Status: StatusOpen, Region: "Lazio", Deadline: &late},
		{ID: "f", Status: StatusClosed, Region: "Lazio", Deadline: &d1},
	}

	plan, err := BuildPlan(FilterRequest{Primary: ByDeadline(DeadlineWeek)}, planNow)
	if err != nil {
		t.Fatal(err)
	}

	var matched []Concorso
	for _, c := range docs {
		if plan.Matches(c) {
			matched = append(matched, c)
		}
	}
	slices.SortFunc(matched, plan.Compare)

	got := make([]string, len(matched))
	for i, c := range matched {
		got[i] = c.ID
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, got); diff != "" {
		t.Errorf("matched mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_MissingDeadlineSortsLast(t *testing.T) {
	d := planNow.Add(24 * time.Hour)
	plan, err := BuildPlan(FilterRequest{Sort: SortDeadlineAsc}, planNow)
	if err != nil {
		t.Fatal(err)
	}

	withDeadline := Concorso{ID: "x", Deadline: &d}
	without := Concorso{ID: "a"}
	if plan.Compare(withDeadline, without) >= 0 {
		t.Error("a record without deadline should sort after one with a deadline")
	}
}

func TestConcorso_NormalizeIsIdempotent(t *testing.T) {
	deadline := time.Date(2025, time.June, 1, 18, 30, 15, 987654321, time.FixedZone("CEST", 7200))
	c := Concorso{
		ID:          "x",
		PublishedAt: time.Date(2025, time.May, 1, 8, 0, 0, 1500000, time.Local),
		Deadline:    &deadline,
		Keywords:    []string{"a"},
	}

	once := c.Normalize()
	twice := once.Normalize()

	if once.Deadline.Location() != time.UTC || once.Deadline.Nanosecond() != 987000000 {
		t.Errorf("deadline not normalized: %v", once.Deadline)
	}
	if !once.PublishedAt.Equal(twice.PublishedAt) || !once.Deadline.Equal(*twice.Deadline) {
		t.Error("Normalize should be idempotent")
	}
	if once.Deadline == c.Deadline {
		t.Error("Normalize must not alias the input deadline")
	}
}
