package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kdimtricp/mediaverify/internal/database"
	"github.com/kdimtricp/mediaverify/internal/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	dayLayout = "2006-01-02"
)

var ErrInvalidRange = errors.New("endDate is before startDate")

// Filter narrows the dashboard. Start and End are calendar days; End is
// inclusive.
type Filter struct {
	Start     *time.Time
	End       *time.Time
	MediaType models.MediaType
}

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	Limit       int `json:"limit"`
}

// Page is one page of day groups, most recent day first.
type Page struct {
	GroupedByDate map[string][]models.ReportEntry `json:"data"`
	Dates         []string                        `json:"dates"`
	Pagination    Pagination                      `json:"pagination"`
}

type Service struct {
	repo database.Repository
}

func NewService(repo database.Repository) *Service {
	return &Service{repo: repo}
}

// NormalizePaging applies defaults and bounds to page and limit.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// ParseDay parses a YYYY-MM-DD query value, also accepting full RFC 3339
// timestamps, and returns UTC midnight of that day.
func ParseDay(value string) (time.Time, error) {
	if t, err := time.Parse(dayLayout, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ListReports groups matching reports by UTC analysis day and pages over
// the groups.
func (s *Service) ListReports(ctx context.Context, filter Filter, page, limit int) (*Page, error) {
	page, limit = NormalizePaging(page, limit)

	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, ErrInvalidRange
	}

	query := database.ReportFilter{MediaType: filter.MediaType}
	if filter.Start != nil {
		from := filter.Start.UTC()
		query.From = &from
	}
	if filter.End != nil {
		before := filter.End.UTC().AddDate(0, 0, 1)
		query.Before = &before
	}

	entries, err := s.repo.FindReports(ctx, query)
	if err != nil {
		return nil, err
	}

	groups, dates := groupByDay(entries)

	totalPages := (len(dates) + limit - 1) / limit

	result := &Page{
		GroupedByDate: make(map[string][]models.ReportEntry),
		Dates:         []string{},
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			Limit:       limit,
		},
	}

	// Pages past the end are empty; skip is only computed when it cannot overflow.
	if page <= totalPages {
		skip := (page - 1) * limit
		end := skip + limit
		if end > len(dates) {
			end = len(dates)
		}
		for _, d := range dates[skip:end] {
			result.Dates = append(result.Dates, d)
			result.GroupedByDate[d] = groups[d]
		}
	}
	return result, nil
}

func groupByDay(entries []models.ReportEntry) (map[string][]models.ReportEntry, []string) {
	sorted := make([]models.ReportEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].AnalysisResult, sorted[j].AnalysisResult
		if !a.AnalyzedDate.Equal(b.AnalyzedDate) {
			return a.AnalyzedDate.After(b.AnalyzedDate)
		}
		return a.ID < b.ID
	})

	groups := make(map[string][]models.ReportEntry)
	var dates []string
	for _, entry := range sorted {
		key := entry.AnalysisResult.AnalyzedDate.UTC().Format(dayLayout)
		if _, ok := groups[key]; !ok {
			dates = append(dates, key)
		}
		groups[key] = append(groups[key], entry)
	}
	return groups, dates
}
