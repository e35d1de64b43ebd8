package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyBody         = errors.New("empty feed body")
	ErrUnknownShape      = errors.New("feed body matches neither live nor history contract")
	ErrUnexpectedVariant = errors.New("feed returned the other feed's contract")
)

var utf8BOM = []byte("\ufeff")

// code accepts a JSON number or a numeric string; the upstream is inconsistent.
type code int

func (c *code) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return fmt.Errorf("non-integer category %s", n)
		}
		*c = code(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("category is neither number nor string: %s", b)
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("non-numeric category %q", s)
	}
	*c = code(i)
	return nil
}

// Feed is one of the two upstream contracts: *LiveFeed or History.
type Feed interface {
	feedName() string
}

// LiveFeed is the current-alert document: {cat, title?, desc?, data: [areas]}.
type LiveFeed struct {
	Cat   code     `json:"cat"`
	Title string   `json:"title"`
	Desc  string   `json:"desc"`
	Data  []string `json:"data"`
}

func (*LiveFeed) feedName() string { return feedLive }

// HistoryEntry is one area in the history document.
type HistoryEntry struct {
	Category  code   `json:"category"`
	AlertDate string `json:"alertDate"`
	Title     string `json:"title"`
	Data      string `json:"data"`
}

type History []HistoryEntry

func (History) feedName() string { return feedHistory }

// cleanBody strips a UTF-8 BOM and surrounding whitespace.
func cleanBody(body []byte) []byte {
	return bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), utf8BOM))
}

// Parse decides which contract the body carries. Anything that is not exactly
// one of the two shapes is rejected rather than half-trusted.
func Parse(body []byte) (Feed, error) {
	body = cleanBody(body)
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	switch body[0] {
	case '{':
		return parseLive(body)
	case '[':
		return parseHistory(body)
	default:
		return nil, ErrUnknownShape
	}
}

func parseLive(body []byte) (Feed, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("error decoding live feed: %w", err)
	}
	if _, ok := fields["cat"]; !ok {
		return nil, fmt.Errorf("%w: missing cat", ErrUnknownShape)
	}
	if _, ok := fields["data"]; !ok {
		return nil, fmt.Errorf("%w: missing data", ErrUnknownShape)
	}

	var feed LiveFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}
	return &feed, nil
}

func parseHistory(body []byte) (Feed, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("error decoding history feed: %w", err)
	}
	for i, item := range items {
		if _, ok := item["category"]; !ok {
			return nil, fmt.Errorf("%w: entry %d missing category", ErrUnknownShape, i)
		}
		if _, ok := item["alertDate"]; !ok {
			return nil, fmt.Errorf("%w: entry %d missing alertDate", ErrUnknownShape, i)
		}
	}

	history := make(History, 0, len(items))
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}
	return history, nil
}
