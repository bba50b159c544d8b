package series

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	appLog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/recur"
	"famcal/internal/storage"
)

// Scope is which subset of a series' occurrences an edit applies to.
type Scope string

const (
	ScopeThisOnly         Scope = "this_only"
	ScopeThisAndFollowing Scope = "this_and_following"
	ScopeAllOccurrences   Scope = "all_occurrences"
)

var (
	ErrUnknownScope  = errors.New("series: unknown edit scope")
	ErrSplitConflict = errors.New("series: split date must fall after the series start")
	ErrNoOccurrence  = errors.New("series: no occurrence on date")
)

// Service owns the series lifecycle: creation, windowed instance derivation,
// and the three edit-scope mutations. All derivation is a pure function of
// the stored series and its exceptions; the service holds no caches.
type Service struct {
	repo     storage.Repository
	expander recur.Expander
	notifier Notifier
}

func NewService(repo storage.Repository, maxWindowDays int) *Service {
	return &Service{
		repo:     repo,
		expander: recur.Expander{MaxWindowDays: maxWindowDays},
	}
}

// Subscribe registers a callback invoked after every successful mutation.
func (s *Service) Subscribe(fn func(Change)) {
	s.notifier.Subscribe(fn)
}

// Create validates and persists a new series. A missing ID is assigned.
func (s *Service) Create(ctx context.Context, in model.Series) (model.Series, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	in.Start = model.DateOf(in.Start)
	in.Active = true
	if err := in.Validate(); err != nil {
		return model.Series{}, err
	}
	if err := s.repo.CreateSeries(ctx, in); err != nil {
		return model.Series{}, fmt.Errorf("create series: %w", err)
	}
	appLog.Info("series created", "series_id", in.ID, "family_id", in.FamilyID, "kind", in.Kind)
	s.notifier.publish(in.ID)
	return in, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Series, error) {
	return s.repo.GetSeries(ctx, id)
}

func (s *Service) List(ctx context.Context, familyID string, activeOnly bool) ([]model.Series, error) {
	return s.repo.ListSeries(ctx, storage.SeriesFilter{FamilyID: familyID, ActiveOnly: activeOnly})
}

// Deactivate soft-disables a series. The row is kept; expansion of an
// inactive series still works for historical views.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	sr, err := s.repo.GetSeries(ctx, id)
	if err != nil {
		return err
	}
	sr.Active = false
	if err := s.repo.UpdateSeries(ctx, sr); err != nil {
		return err
	}
	s.notifier.publish(id)
	return nil
}

// Instances derives the virtual instances of one series over [from, to]:
// expand the rule, reconcile exceptions, materialize payloads.
func (s *Service) Instances(ctx context.Context, seriesID string, from, to time.Time) ([]model.Instance, error) {
	sr, err := s.repo.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.repo.ListExceptions(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return s.derive(sr, exceptions, from, to)
}

// FamilyInstances derives instances across every active series of a family,
// ordered by start time then series ID.
func (s *Service) FamilyInstances(ctx context.Context, familyID string, from, to time.Time) ([]model.Instance, error) {
	list, err := s.repo.ListSeries(ctx, storage.SeriesFilter{FamilyID: familyID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]model.Instance, 0)
	for _, sr := range list {
		exceptions, err := s.repo.ListExceptions(ctx, sr.ID)
		if err != nil {
			return nil, fmt.Errorf("list exceptions for %s: %w", sr.ID, err)
		}
		instances, err := s.derive(sr, exceptions, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, instances...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].SeriesID < out[j].SeriesID
	})
	return out, nil
}

func (s *Service) derive(sr model.Series, exceptions []model.Exception, from, to time.Time) ([]model.Instance, error) {
	dates, err := s.expander.Expand(sr.Rule, sr.Start, sr.End, from, to)
	if err != nil {
		return nil, err
	}
	occurrences, err := recur.Reconcile(dates, exceptions)
	if err != nil {
		return nil, err
	}
	out := make([]model.Instance, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, recur.Materialize(sr, occ))
	}
	return out, nil
}

// ApplyEdit performs one edit-scope mutation:
//
//   - this_only writes or replaces an override exception at the date;
//   - this_and_following splits the series at the date, moving the new
//     payload (and optionally a new rule) onto a child series;
//   - all_occurrences updates the series in place, leaving stored
//     exceptions to keep applying on top of the new payload.
//
// Validation happens up front; a failed edit writes nothing.
func (s *Service) ApplyEdit(ctx context.Context, scope Scope, seriesID string, date time.Time, patch *model.Patch, newRule *model.Rule) error {
	switch scope {
	case ScopeThisOnly:
		return s.editThisOnly(ctx, seriesID, date, patch)
	case ScopeThisAndFollowing:
		return s.editThisAndFollowing(ctx, seriesID, date, patch, newRule)
	case ScopeAllOccurrences:
		return s.editAllOccurrences(ctx, seriesID, patch, newRule)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
}

// SkipOccurrence removes a single occurrence by writing a skip exception.
// The series itself is untouched.
func (s *Service) SkipOccurrence(ctx context.Context, seriesID string, date time.Time) error {
	sr, err := s.repo.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	d := model.DateOf(date)
	if err := s.requireOccurrence(sr, d); err != nil {
		return err
	}
	ex := model.Exception{
		SeriesID:  seriesID,
		Date:      d,
		Type:      model.ExceptionSkip,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.UpsertException(ctx, ex); err != nil {
		return fmt.Errorf("write skip exception: %w", err)
	}
	appLog.Info("occurrence skipped", "series_id", seriesID, "date", model.ISODate(d))
	s.notifier.publish(seriesID)
	return nil
}

func (s *Service) editThisOnly(ctx context.Context, seriesID string, date time.Time, patch *model.Patch) error {
	sr, err := s.repo.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	d := model.DateOf(date)
	if err := s.requireOccurrence(sr, d); err != nil {
		return err
	}
	ex := model.Exception{
		SeriesID:  seriesID,
		Date:      d,
		Type:      model.ExceptionOverride,
		Patch:     patch,
		CreatedAt: time.Now().UTC(),
	}
	if err := ex.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpsertException(ctx, ex); err != nil {
		return fmt.Errorf("write override exception: %w", err)
	}
	appLog.Info("occurrence overridden", "series_id", seriesID, "date", model.ISODate(d))
	s.notifier.publish(seriesID)
	return nil
}

func (s *Service) editThisAndFollowing(ctx context.Context, seriesID string, date time.Time, patch *model.Patch, newRule *model.Rule) error {
	parent, err := s.repo.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	d := model.DateOf(date)
	if !d.After(model.DateOf(parent.Start)) {
		return fmt.Errorf("%w: series %s starts %s, split requested at %s",
			ErrSplitConflict, seriesID, model.ISODate(parent.Start), model.ISODate(d))
	}

	child := parent
	child.ID = uuid.NewString()
	child.OriginalSeriesID = parent.ID
	child.Start = d
	child.Payload = parent.Payload.Apply(patch)
	child.CreatedAt = time.Now().UTC()
	if newRule != nil {
		child.Rule = *newRule
	} else {
		// Carrying the rule over re-anchors it at the child's start. The
		// split date must be an occurrence of the parent rule, otherwise the
		// child would shift the pattern's phase and the pair would no longer
		// reproduce the unsplit occurrence set.
		if err := s.requireOccurrence(parent, d); err != nil {
			return err
		}
		if parent.Rule.EndType == model.EndAfterCount {
			// The child inherits only the occurrences the parent had left,
			// so the split never grows the overall series.
			consumed, err := s.expander.Expand(parent.Rule, parent.Start, parent.End, parent.Start, d.AddDate(0, 0, -1))
			if err != nil {
				return err
			}
			remaining := parent.Rule.EndCount - len(consumed)
			if remaining < 1 {
				return fmt.Errorf("%w: series %s is exhausted before %s", ErrNoOccurrence, seriesID, model.ISODate(d))
			}
			child.Rule.EndCount = remaining
		}
	}
	if err := child.Validate(); err != nil {
		return err
	}

	boundary := d.AddDate(0, 0, -1)
	parent.Rule.EndType = model.EndOnDate
	parent.Rule.EndDate = &boundary
	parent.Rule.EndCount = 0

	// Exceptions dated at or past the boundary are left in place on the
	// parent. They stop matching once expansion no longer reaches their
	// dates; deleting them would silently discard user edits.
	if err := s.repo.SplitSeries(ctx, parent, child); err != nil {
		return fmt.Errorf("split series: %w", err)
	}
	appLog.Info("series split",
		"parent_id", parent.ID, "child_id", child.ID, "split_date", model.ISODate(d))
	s.notifier.publish(parent.ID, child.ID)
	return nil
}

func (s *Service) editAllOccurrences(ctx context.Context, seriesID string, patch *model.Patch, newRule *model.Rule) error {
	sr, err := s.repo.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	sr.Payload = sr.Payload.Apply(patch)
	if newRule != nil {
		sr.Rule = *newRule
	}
	if err := sr.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateSeries(ctx, sr); err != nil {
		return fmt.Errorf("update series: %w", err)
	}
	appLog.Info("series updated", "series_id", seriesID)
	s.notifier.publish(seriesID)
	return nil
}

// requireOccurrence verifies that the rule actually produces date, so an
// exception cannot be attached to a day the series never touches.
func (s *Service) requireOccurrence(sr model.Series, date time.Time) error {
	dates, err := s.expander.Expand(sr.Rule, sr.Start, sr.End, date, date)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return fmt.Errorf("%w: series %s, date %s", ErrNoOccurrence, sr.ID, model.ISODate(date))
	}
	return nil
}
