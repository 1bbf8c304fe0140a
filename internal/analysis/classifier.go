package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"relationship-metrics/internal/models"
)

// Windows are the classifier's window lengths (days) and visit thresholds.
type Windows struct {
	ChurnDays           int
	RepeatT2Days        int
	RepeatT3Days        int
	RegularWindowDays   int
	RegularVisits       int
	RetentionWindowDays int
	RetentionVisits     int
}

// Classifier applies the window rules against a fixed data cutoff. Every
// method is a pure function of the baseline, the scope's timestamps, the
// cutoff and the windows.
type Classifier struct {
	w      Windows
	cutoff time.Time
}

func NewClassifier(w Windows, cutoff time.Time) Classifier {
	return Classifier{w: w, cutoff: cutoff}
}

// ChurnResult is the churn outcome for one entry.
type ChurnResult struct {
	Churn      bool
	ReturnDays *int
	Mature     bool
}

// Churn looks at the first visit date after the baseline date. No return,
// or a return later than the churn window, is churn.
func (c Classifier) Churn(baseline time.Time, stamps []time.Time) ChurnResult {
	res := ChurnResult{Churn: true, Mature: IsMatureDays(baseline, c.cutoff, c.w.ChurnDays)}
	after := datesAfter(baseline, stamps)
	if len(after) == 0 {
		return res
	}
	d := daysBetween(baseline, after[0])
	res.ReturnDays = &d
	res.Churn = d > c.w.ChurnDays
	return res
}

type RepeatResult struct {
	RepeatT2 bool
	RepeatT3 bool
	MatureT2 bool
	MatureT3 bool
}

// Repeat tests the first return date against T2 and the second against T3.
// The two tests are independent.
func (c Classifier) Repeat(baseline time.Time, stamps []time.Time) RepeatResult {
	after := datesAfter(baseline, stamps)
	res := RepeatResult{
		MatureT2: IsMatureDays(baseline, c.cutoff, c.w.RepeatT2Days),
		MatureT3: IsMatureDays(baseline, c.cutoff, c.w.RepeatT3Days),
	}
	if len(after) >= 1 {
		res.RepeatT2 = daysBetween(baseline, after[0]) <= c.w.RepeatT2Days
	}
	if len(after) >= 2 {
		res.RepeatT3 = daysBetween(baseline, after[1]) <= c.w.RepeatT3Days
	}
	return res
}

type RegularResult struct {
	Count           int
	Achieved        bool
	AchievementDate *time.Time
	Mature          bool
}

// Regular counts distinct visit dates in [baseline, baseline+R], the
// baseline date included. The K-th date is the achievement date.
func (c Classifier) Regular(baseline time.Time, stamps []time.Time) RegularResult {
	res := RegularResult{Mature: IsMatureDays(baseline, c.cutoff, c.w.RegularWindowDays)}
	base := dateOf(baseline)
	var inWindow []time.Time
	for _, d := range distinctDates(stamps) {
		if d.Before(base) {
			continue
		}
		if daysBetween(base, d) > c.w.RegularWindowDays {
			break
		}
		inWindow = append(inWindow, d)
	}
	res.Count = len(inWindow)
	if c.w.RegularVisits > 0 && res.Count >= c.w.RegularVisits {
		res.Achieved = true
		at := inWindow[c.w.RegularVisits-1]
		res.AchievementDate = &at
	}
	return res
}

type RetentionResult struct {
	Retained  *bool
	PostCount *int
	Mature    bool
}

// Retention counts distinct visit dates strictly after the achievement
// date and within R2 days of it. Nothing is defined until that window has
// elapsed.
func (c Classifier) Retention(achievement time.Time, stamps []time.Time) RetentionResult {
	if !IsMatureDays(achievement, c.cutoff, c.w.RetentionWindowDays) {
		return RetentionResult{}
	}
	count := 0
	for _, d := range datesAfter(achievement, stamps) {
		if daysBetween(achievement, d) > c.w.RetentionWindowDays {
			break
		}
		count++
	}
	retained := count >= c.w.RetentionVisits
	return RetentionResult{Retained: &retained, PostCount: &count, Mature: true}
}

// classifyEntry fills the flags that apply to e's cohort kind.
func (c Classifier) classifyEntry(e *models.CohortEntry, ix *Index) {
	triple := ix.CustomerLocationProvider(e.Customer, e.Location, e.Provider)

	switch e.Kind {
	case models.CohortNewCustomer:
		ch := c.Churn(e.Baseline, ix.CustomerLocation(e.Customer, e.Location))
		e.Churn, e.ReturnDays, e.Maturity.Churn = ch.Churn, ch.ReturnDays, ch.Mature
		e.Subsequent = datesAfter(e.Baseline, ix.CustomerLocation(e.Customer, e.Location))
		c.applyRepeat(e, triple)

	case models.CohortFamiliar:
		e.Subsequent = datesAfter(e.Baseline, triple)
		c.applyRepeat(e, triple)

	case models.CohortRelationship:
		e.Subsequent = datesAfter(e.Baseline, triple)
		c.applyRepeat(e, triple)

		reg := c.Regular(e.Baseline, triple)
		e.RegularCount, e.RegularAchieved, e.AchievementDate = reg.Count, reg.Achieved, reg.AchievementDate
		e.Maturity.Regular = reg.Mature
		if reg.Achieved {
			ret := c.Retention(*reg.AchievementDate, triple)
			e.Retained, e.PostVisitCount, e.Maturity.Retention = ret.Retained, ret.PostCount, ret.Mature
		}
	}
}

func (c Classifier) applyRepeat(e *models.CohortEntry, stamps []time.Time) {
	rep := c.Repeat(e.Baseline, stamps)
	e.RepeatT2, e.RepeatT3 = rep.RepeatT2, rep.RepeatT3
	e.Maturity.RepeatT2, e.Maturity.RepeatT3 = rep.MatureT2, rep.MatureT3
}

// ClassifyAll classifies entries in place using up to parallelism
// goroutines. Each goroutine owns a contiguous chunk of the slice, so the
// output does not depend on scheduling.
func (c Classifier) ClassifyAll(ctx context.Context, entries []models.CohortEntry, ix *Index, parallelism int) error {
	if parallelism < 1 {
		parallelism = 1
	}
	chunk := (len(entries) + parallelism - 1) / parallelism
	if chunk == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for start := 0; start < len(entries); start += chunk {
		part := entries[start:min(start+chunk, len(entries))]
		g.Go(func() error {
			for i := range part {
				if err := ctx.Err(); err != nil {
					return err
				}
				c.classifyEntry(&part[i], ix)
			}
			return nil
		})
	}
	return g.Wait()
}
