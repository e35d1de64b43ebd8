package ingestion

import (
	"context"
	"errors"
	"strings"

	"github.com/mr1hm/go-shelter-alerts/internal/models"
	"github.com/mr1hm/go-shelter-alerts/internal/store"
)

// liveScan is a live-feed document reduced to what the store accepts.
type liveScan struct {
	reports  []store.Report
	notice   *models.EarlyWarningNotice
	filtered map[string]int
}

func (m *Manager) fetchLive(ctx context.Context) (*LiveFeed, error) {
	body, err := m.fetch(ctx, m.cfg.LiveURL)
	if err != nil {
		return nil, err
	}

	feed, err := Parse(body)
	if errors.Is(err, ErrEmptyBody) {
		// The live feed answers with an empty body when nothing is active.
		return &LiveFeed{}, nil
	}
	if err != nil {
		return nil, err
	}

	live, ok := feed.(*LiveFeed)
	if !ok {
		return nil, ErrUnexpectedVariant
	}
	return live, nil
}

func (m *Manager) normalizeLive(feed *LiveFeed) liveScan {
	scan := liveScan{filtered: map[string]int{}}
	if len(feed.Data) == 0 {
		return scan
	}

	alertType := mapLiveCategory(int(feed.Cat))
	if alertType == models.AlertTypeDrill {
		scan.filtered[reasonDrill] += len(feed.Data)
		return scan
	}

	areas := m.filterAreas(feed.Data, scan.filtered)

	if alertType == models.AlertTypeNewsFlash {
		scan.notice = &models.EarlyWarningNotice{
			Instructions: firstNonEmpty(feed.Title, feed.Desc),
			Timestamp:    m.clock.Now().UnixMilli(),
			Areas:        areas,
		}
		return scan
	}

	scan.reports = make([]store.Report, 0, len(areas))
	for _, area := range areas {
		scan.reports = append(scan.reports, store.Report{
			Area:         area,
			Type:         alertType,
			Instructions: feed.Desc,
		})
	}
	return scan
}

// filterAreas trims, dedupes and drops test-marked areas, preserving feed order.
func (m *Manager) filterAreas(raw []string, filtered map[string]int) []string {
	seen := make(map[string]struct{}, len(raw))
	areas := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if m.isTestArea(a) {
			filtered[reasonTestMarker]++
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		areas = append(areas, a)
	}
	return areas
}

func (m *Manager) isTestArea(area string) bool {
	return m.cfg.TestMarker != "" && strings.Contains(area, m.cfg.TestMarker)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
