package recur

import (
	"fmt"
	"time"

	"famcal/internal/model"
)

// Occurrence is one surviving candidate date with its exception annotation,
// ready for materialization.
type Occurrence struct {
	Date time.Time

	// Exception is nil for a plain occurrence, or the override exception
	// whose patch must be applied. Skipped dates never reach here.
	Exception *model.Exception
}

// Reconcile merges candidate dates with the series' exceptions. Skip
// exceptions drop their date from the output; override exceptions annotate
// it. Two exceptions on the same date violate the store's uniqueness
// invariant and surface as ErrDuplicateException rather than being resolved
// silently — picking one could hide a real data bug upstream.
func Reconcile(dates []time.Time, exceptions []model.Exception) ([]Occurrence, error) {
	byDate := make(map[string]model.Exception, len(exceptions))
	for _, ex := range exceptions {
		key := model.ISODate(model.DateOf(ex.Date))
		if _, dup := byDate[key]; dup {
			return nil, fmt.Errorf("%w: series %s date %s", model.ErrDuplicateException, ex.SeriesID, key)
		}
		byDate[key] = ex
	}

	out := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		ex, ok := byDate[model.ISODate(d)]
		if !ok {
			out = append(out, Occurrence{Date: d})
			continue
		}
		switch ex.Type {
		case model.ExceptionSkip:
			// dropped
		case model.ExceptionOverride:
			annotated := ex
			out = append(out, Occurrence{Date: d, Exception: &annotated})
		default:
			return nil, fmt.Errorf("%w: series %s has exception type %q", model.ErrInvalidException, ex.SeriesID, ex.Type)
		}
	}
	return out, nil
}
