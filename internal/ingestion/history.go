package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/store"
)

const (
	historyDateLayout = "2006-01-02 15:04:05"
	historyMaxAge     = 120 * time.Second
)

type historyScan struct {
	reports  []store.Report
	notice   *models.EarlyWarningNotice
	filtered map[string]int
}

func (m *Manager) fetchHistory(ctx context.Context) (History, error) {
	body, err := m.fetch(ctx, m.cfg.HistoryURL)
	if err != nil {
		return nil, err
	}

	feed, err := Parse(body)
	if errors.Is(err, ErrEmptyBody) {
		return History{}, nil
	}
	if err != nil {
		return nil, err
	}

	history, ok := feed.(History)
	if !ok {
		return nil, ErrUnexpectedVariant
	}
	return history, nil
}

func (m *Manager) normalizeHistory(history History) historyScan {
	scan := historyScan{filtered: map[string]int{}}
	now := m.clock.Now()

	type noticeGroup struct {
		at    time.Time
		title string
		areas []string
	}
	var newest *noticeGroup
	seen := map[string]int{}

	for _, e := range history {
		// alertDate carries no zone; the upstream reports Israel local time.
		at, err := time.ParseInLocation(historyDateLayout, e.AlertDate, m.loc)
		if err != nil {
			scan.filtered[reasonBadDate]++
			continue
		}
		if now.Sub(at) > historyMaxAge {
			scan.filtered[reasonStale]++
			continue
		}

		area := m.filterAreas([]string{e.Data}, scan.filtered)
		if len(area) == 0 {
			continue
		}

		switch alertType := mapHistoryCategory(int(e.Category)); alertType {
		case models.AlertTypeDrill:
			scan.filtered[reasonDrill]++
		case models.AlertTypeEventEnded:
			scan.filtered[reasonEventEnded]++
		case models.AlertTypeNewsFlash:
			switch {
			case newest == nil || at.After(newest.at):
				newest = &noticeGroup{at: at, title: e.Title, areas: area}
			case at.Equal(newest.at):
				newest.areas = appendUnique(newest.areas, area[0])
			}
		default:
			if i, dup := seen[area[0]]; dup {
				if at.After(scan.reports[i].ReportedAt) {
					scan.reports[i].ReportedAt = at
				}
				continue
			}
			seen[area[0]] = len(scan.reports)
			scan.reports = append(scan.reports, store.Report{Area: area[0], Type: alertType, ReportedAt: at})
		}
	}

	if newest != nil {
		scan.notice = &models.EarlyWarningNotice{
			Instructions: newest.title,
			Timestamp:    newest.at.UnixMilli(),
			Areas:        newest.areas,
		}
	}
	return scan
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
