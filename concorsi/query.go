package concorsi

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameter names accepted by ParseQuery.
const (
	ParamKeyword        = "q"
	ParamRegion         = "regione"
	ParamEnte           = "ente"
	ParamSector         = "settore"
	ParamRegime         = "regime"
	ParamStatus         = "stato"
	ParamDeadline       = "scadenza"
	ParamPublishedAfter = "dal"
	ParamSort           = "sort"
	ParamPage           = "page"
	ParamCursor         = "cursor"
	ParamLimit          = "limit"
	ParamTotal          = "total"
)

// ParseQuery translates HTTP query parameters into a FilterRequest. Regions may
// be repeated or comma separated. Values are not normalized; malformed numbers,
// booleans and dates fail with a *FilterError.
func ParseQuery(values url.Values) (FilterRequest, error) {
	req := FilterRequest{
		Keyword:  values.Get(ParamKeyword),
		Ente:     values.Get(ParamEnte),
		Sector:   values.Get(ParamSector),
		Regime:   values.Get(ParamRegime),
		Status:   Status(values.Get(ParamStatus)),
		Deadline: DeadlineBucket(values.Get(ParamDeadline)),
		Sort:     SortKey(values.Get(ParamSort)),
		Cursor:   values.Get(ParamCursor),
	}

	for _, raw := range values[ParamRegion] {
		for _, region := range strings.Split(raw, ",") {
			if region = strings.TrimSpace(region); region != "" {
				req.Regions = append(req.Regions, region)
			}
		}
	}

	var err error
	if req.Page, err = parseInt(values, ParamPage); err != nil {
		return FilterRequest{}, err
	}
	if req.PageSize, err = parseInt(values, ParamLimit); err != nil {
		return FilterRequest{}, err
	}

	if raw := values.Get(ParamTotal); raw != "" {
		total, err := strconv.ParseBool(raw)
		if err != nil {
			return FilterRequest{}, &FilterError{Field: ParamTotal, Message: "must be a boolean"}
		}
		req.IncludeTotal = total
	}

	if raw := values.Get(ParamPublishedAfter); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return FilterRequest{}, &FilterError{Field: ParamPublishedAfter, Message: "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"}
		}
		req.PublishedAfter = &t
	}

	return req, nil
}

func parseInt(values url.Values, name string) (int, error) {
	raw := values.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &FilterError{Field: name, Message: "must be an integer"}
	}
	return n, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
