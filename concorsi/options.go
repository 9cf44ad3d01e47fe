package concorsi

import (
	"context"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/concoro-it/concoro/cache"
)

// OptionFields are the fields GetFilterOptions can enumerate.
var OptionFields = []Field{FieldSector, FieldEnte, FieldRegion, FieldRegime}

// GetFilterOptions returns the distinct non-empty values of field among the
// records matching base, sorted with Italian collation.
//
// Only the first Config.OptionsSampleSize matching records are scanned, so the
// list is an approximation: rare values outside the sample are missing.
// Pagination fields of base are ignored.
func (s *Service) GetFilterOptions(ctx context.Context, field Field, base FilterRequest) ([]string, error) {
	if !isOptionField(field) {
		return nil, &FilterError{Field: "field", Message: "must be one of sector, ente, region, regime"}
	}

	base.Cursor = ""
	base.Page = 0
	base.PageSize = 0
	base.IncludeTotal = false
	applied := base.Normalize()

	plan, err := BuildPlan(applied, s.now())
	if err != nil {
		return nil, err
	}
	plan.Limit = s.cfg.OptionsSampleSize
	plan.PageSize = s.cfg.OptionsSampleSize

	params := applied.KeyParams()
	delete(params, "page_size")
	params["field"] = string(field)
	params["sample"] = s.cfg.OptionsSampleSize
	key := s.cache.Key(OptionsKeyPrefix, params)

	return cache.CachedOperation(ctx, s.cache, key, func(ctx context.Context) ([]string, error) {
		records, err := runQuery(ctx, s, "options", func(ctx context.Context) ([]Concorso, error) {
			return s.store.Query(ctx, plan)
		})
		if err != nil {
			return nil, err
		}
		return distinctValues(records, field), nil
	}, cache.WithTTL(s.cfg.OptionsTTL))
}

func isOptionField(field Field) bool {
	for _, f := range OptionFields {
		if f == field {
			return true
		}
	}
	return false
}

func distinctValues(records []Concorso, field Field) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, c := range records {
		v := FieldString(c, field)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}

	collate.New(language.Italian, collate.IgnoreCase).SortStrings(values)
	return values
}
