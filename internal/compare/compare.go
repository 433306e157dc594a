// Package compare checks our pages against competitor pages, one sheet row at a time.
package compare

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
)

// Sheet column positions. The first row of a sheet is a header.
const (
	ColKeyword = iota
	ColSearchVolume
	ColOurURL
	ColOurDate
	ColCompetitor1URL
	ColCompetitor1Date
	ColCompetitor2URL
	ColCompetitor2Date
	ColCompetitor3URL
	ColCompetitor3Date
	ColCompetitorsNewer

	rowWidth
)

// NotAvailable is written into a date column when no date could be found.
const NotAvailable = "N/A"

var competitorColumns = [][2]int{
	{ColCompetitor1URL, ColCompetitor1Date},
	{ColCompetitor2URL, ColCompetitor2Date},
	{ColCompetitor3URL, ColCompetitor3Date},
}

// Comparer implements checker.SheetComparer on top of a URLChecker.
type Comparer struct {
	checker checker.URLChecker
	logger  *zap.Logger
}

var _ checker.SheetComparer = (*Comparer)(nil)

// New builds a Comparer.
func New(urlChecker checker.URLChecker, logger *zap.Logger) *Comparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparer{checker: urlChecker, logger: logger}
}

// Compare fills in our date, competitor dates and the newer-competitor count
// for every data row, and collects an update for each competitor page that is
// newer than ours and whose date changed since the sheet was written.
func (c *Comparer) Compare(ctx context.Context, rows [][]string) (checker.SheetResult, error) {
	result := checker.SheetResult{
		ProcessedData: [][]string{},
		EmailUpdates:  []checker.EmailUpdate{},
	}
	if len(rows) <= 1 {
		return result, nil
	}

	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return checker.SheetResult{}, fmt.Errorf("compare row %d: %w", i+1, err)
		}
		processed, updates := c.compareRow(ctx, row)
		result.ProcessedData = append(result.ProcessedData, processed)
		result.EmailUpdates = append(result.EmailUpdates, updates...)
	}

	c.logger.Info("sheet compared",
		zap.Int("rows", len(result.ProcessedData)),
		zap.Int("updates", len(result.EmailUpdates)),
	)
	return result, nil
}

func (c *Comparer) compareRow(ctx context.Context, row []string) ([]string, []checker.EmailUpdate) {
	processed := padRow(row)
	ourURL := processed[ColOurURL]
	volume := processed[ColSearchVolume]

	ourRecord := c.checker.ExtractLastUpdated(ctx, ourURL)
	ourDate, haveOurs := recordDate(ourRecord)
	if haveOurs {
		processed[ColOurDate] = ourDate.Format(checker.DateLayout)
	} else {
		processed[ColOurDate] = NotAvailable
	}

	type competitor struct {
		url          string
		dateCol      int
		originalDate string
	}
	var competitors []competitor
	for _, cols := range competitorColumns {
		if u := processed[cols[0]]; u != "" {
			competitors = append(competitors, competitor{url: u, dateCol: cols[1], originalDate: processed[cols[1]]})
		}
	}

	urls := make([]string, len(competitors))
	for i, comp := range competitors {
		urls[i] = comp.url
	}
	var records []checker.URLRecord
	if len(urls) > 0 {
		records = c.checker.ProcessURLs(ctx, urls)
	}

	newer := 0
	var updates []checker.EmailUpdate
	for i, comp := range competitors {
		theirDate, ok := recordDate(records[i])
		if !ok {
			processed[comp.dateCol] = NotAvailable
			continue
		}
		formatted := *records[i].LastUpdated
		processed[comp.dateCol] = formatted

		if !haveOurs || !theirDate.After(ourDate) {
			continue
		}
		newer++
		if formatted == comp.originalDate {
			continue
		}
		updates = append(updates, checker.EmailUpdate{
			CompetitorURL: records[i].URL,
			SearchVolume:  volume,
			OurURL:        ourURL,
			OurPageDate:   ourDate.Format(checker.DateLayout),
			DaysOlder:     int(theirDate.Sub(ourDate) / (24 * time.Hour)),
		})
	}
	processed[ColCompetitorsNewer] = strconv.Itoa(newer)
	return processed, updates
}

func recordDate(rec checker.URLRecord) (time.Time, bool) {
	if rec.LastUpdated == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(checker.DateLayout, *rec.LastUpdated)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func padRow(row []string) []string {
	width := len(row)
	if width < rowWidth {
		width = rowWidth
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
