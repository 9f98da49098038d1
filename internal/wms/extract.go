package wms

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/nguyenvanthanh0055-cyber/WMS-DATA-PIPELINE/internal/entity"
)

// RawRecord is one upstream JSON object for a business entity instance.
type RawRecord = map[string]any

// maxPaginationOffset guards against a pathological upstream that never
// signals exhaustion.
const maxPaginationOffset = 2_000_000

// UnstableOrderError reports an upstream collection that is not sorted
// ascending by (updated_at, id). Pagination cannot safely resume when the
// collection is being reordered by concurrent writes.
type UnstableOrderError struct {
	Entity string
	Key    [2]string
	Prev   [2]string
}

func (e *UnstableOrderError) Error() string {
	return fmt.Sprintf("unstable ordering detected for %s: %v < %v", e.Entity, e.Key, e.Prev)
}

// PaginationRunawayError reports an offset past the guard ceiling.
type PaginationRunawayError struct {
	Entity string
	Offset int
}

func (e *PaginationRunawayError) Error() string {
	return fmt.Sprintf("pagination runaway for %s: offset=%d", e.Entity, e.Offset)
}

// pageEnvelope is the upstream page shape: data sorted ascending by
// (updated_at, id), plus opaque meta.
type pageEnvelope struct {
	Data []RawRecord    `json:"data"`
	Meta map[string]any `json:"meta"`
}

// pageResult is the explicit two-case outcome of one page fetch: either a
// page of rows or an unambiguous end-of-collection signal.
type pageResult struct {
	Rows      []RawRecord
	Exhausted bool
}

// Extractor walks an entity's collection page by page. The query cursor
// stays fixed for the whole run; pages advance by offset so the upstream
// defines the stable set "as of now".
type Extractor struct {
	Client   *Client
	PageSize int

	// MaxOffset overrides the runaway ceiling. Zero means the default.
	MaxOffset int
}

// FetchAll returns every record with updated_at strictly after cursorTime,
// in (updated_at, id) order. The sequence is finite and not restartable
// mid-call; a restart is a new call with an adjusted cursor.
func (e *Extractor) FetchAll(ctx context.Context, entityName string, cursorTime time.Time) ([]RawRecord, error) {
	ent, err := entity.Lookup(entityName)
	if err != nil {
		return nil, err
	}

	maxOffset := e.MaxOffset
	if maxOffset <= 0 {
		maxOffset = maxPaginationOffset
	}

	var all []RawRecord
	var prev *[2]string
	offset := 0

	for {
		page, err := e.fetchPage(ctx, ent, cursorTime, offset)
		if err != nil {
			return nil, err
		}
		if page.Exhausted {
			break
		}

		prev, err = assertStableOrder(ent.Name, page.Rows, prev)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Rows...)

		log.Printf("[%s] fetched page offset=%d count=%d total=%d",
			ent.Name, offset, len(page.Rows), len(all))

		if len(page.Rows) < e.PageSize {
			break
		}

		offset += e.PageSize
		if offset >= maxOffset {
			return nil, &PaginationRunawayError{Entity: ent.Name, Offset: offset}
		}
	}

	return all, nil
}

// fetchPage requests a single page at the given offset.
func (e *Extractor) fetchPage(ctx context.Context, ent entity.Entity, cursorTime time.Time, offset int) (pageResult, error) {
	query := url.Values{}
	query.Set("updated_after", FormatCursor(cursorTime))
	query.Set("limit", strconv.Itoa(e.PageSize))
	query.Set("offset", strconv.Itoa(offset))

	var envelope struct {
		Data any            `json:"data"`
		Meta map[string]any `json:"meta"`
	}
	ok, err := e.Client.GetJSON(ctx, ent.Path, query, &envelope)
	if err != nil {
		return pageResult{}, err
	}
	if !ok || envelope.Data == nil {
		// Absent body or absent data key is the upstream's end signal.
		return pageResult{Exhausted: true}, nil
	}

	rows, ok := toRecords(envelope.Data)
	if !ok {
		return pageResult{}, fmt.Errorf("unexpected API response type for %s: data is %T",
			ent.Name, envelope.Data)
	}

	return pageResult{Rows: rows}, nil
}

// toRecords narrows the decoded data field to a list of JSON objects.
func toRecords(data any) ([]RawRecord, bool) {
	items, ok := data.([]any)
	if !ok {
		return nil, false
	}
	rows := make([]RawRecord, 0, len(items))
	for _, item := range items {
		rec, ok := item.(RawRecord)
		if !ok {
			return nil, false
		}
		rows = append(rows, rec)
	}
	return rows, true
}

// assertStableOrder verifies rows are non-decreasing in (updated_at, id),
// both within the page and against the last row of the previous page.
func assertStableOrder(entityName string, rows []RawRecord, prev *[2]string) (*[2]string, error) {
	for _, row := range rows {
		key := stableKey(row)
		if prev != nil && lessKey(key, *prev) {
			return nil, &UnstableOrderError{Entity: entityName, Key: key, Prev: *prev}
		}
		k := key
		prev = &k
	}
	return prev, nil
}

func stableKey(row RawRecord) [2]string {
	return [2]string{fmt.Sprint(row["updated_at"]), fmt.Sprint(row["id"])}
}

func lessKey(a, b [2]string) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

// FormatCursor renders a cursor time the way the upstream expects:
// second-precision ISO 8601 in UTC with a Z suffix.
func FormatCursor(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
