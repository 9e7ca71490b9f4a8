package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound indicates the named worksheet does not exist in the
// spreadsheet.
var ErrNotFound = errors.New("script: worksheet not found")

// TransportError wraps a data-source failure (network, auth, quota).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("script: data source: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedRowError reports a row that does not resolve to the required
// account / interval / text triple. Row is 1-based, counted from the
// worksheet top (the header is row 1).
type MalformedRowError struct {
	Row    int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("script: row %d: %s", e.Row, e.Reason)
}

// ParseRows converts raw worksheet rows into a Collection. Each row must
// carry exactly three usable cells: account, interval (non-negative whole
// seconds) and text. Rows that are entirely blank are skipped (trailing
// sheet rows); any partially filled or invalid row fails the whole load,
// so a partial collection is never handed to a session.
//
// firstRow is the 1-based worksheet row of rows[0], used for error
// reporting (2 when the sheet has a header row).
func ParseRows(name string, rows [][]string, firstRow int) (*Collection, error) {
	if firstRow < 1 {
		firstRow = 1
	}
	col := &Collection{Name: name}
	for i, row := range rows {
		account := cell(row, 0)
		interval := cell(row, 1)
		text := cell(row, 2)
		if account == "" && interval == "" && text == "" {
			continue
		}

		rowIdx := firstRow + i
		if account == "" {
			return nil, &MalformedRowError{Row: rowIdx, Reason: "account is empty"}
		}
		if interval == "" {
			return nil, &MalformedRowError{Row: rowIdx, Reason: "interval is empty"}
		}
		secs, err := strconv.Atoi(interval)
		if err != nil {
			return nil, &MalformedRowError{Row: rowIdx, Reason: fmt.Sprintf("interval %q is not a whole number of seconds", interval)}
		}
		if secs < 0 {
			return nil, &MalformedRowError{Row: rowIdx, Reason: fmt.Sprintf("interval %d is negative", secs)}
		}
		if text == "" {
			return nil, &MalformedRowError{Row: rowIdx, Reason: "text is empty"}
		}

		col.Entries = append(col.Entries, Entry{
			Account:  NormalizeAccount(account),
			Interval: secs,
			Text:     text,
			Row:      rowIdx,
		})
	}
	return col, nil
}

// cell returns the trimmed cell at index i, or "" when the row is shorter.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
