package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultDataSourceName attributes committed records when none is configured.
const DefaultDataSourceName = "CSV Import"

// CommitRequest is the input to ImportCommitter.Commit.
type CommitRequest struct {
	ImportID int64
	FileName string
	Rows     []NormalizedRow
	Snapshot *ReferenceSnapshot
}

// ImportCommitter writes a fully validated file in one transaction. It is
// the only place that mutates statistic data.
type ImportCommitter struct {
	store      CommitStore
	dataSource string
}

// NewImportCommitter creates a committer that attributes sessions to dataSource.
func NewImportCommitter(store CommitStore, dataSource string) *ImportCommitter {
	if dataSource == "" {
		dataSource = DefaultDataSourceName
	}
	return &ImportCommitter{store: store, dataSource: dataSource}
}

// Commit resolves every row against the snapshot, creates an ImportSession
// and bulk-inserts the records. Either all of it is written or none of it.
// A request with no rows writes nothing and returns a nil session.
func (c *ImportCommitter) Commit(ctx context.Context, req CommitRequest) (*ImportSession, error) {
	if len(req.Rows) == 0 {
		return nil, nil
	}
	if req.Snapshot == nil {
		return nil, fmt.Errorf("commit import %d: missing reference snapshot", req.ImportID)
	}

	sessionID := uuid.New()
	records := make([]CommittedRecord, 0, len(req.Rows))
	for _, row := range req.Rows {
		stateID, ok := req.Snapshot.States[row.State]
		if !ok {
			return nil, fmt.Errorf("row %d: state %q missing from reference snapshot", row.RowNumber, row.State)
		}
		if _, ok := req.Snapshot.Categories[row.Category]; !ok {
			return nil, fmt.Errorf("row %d: category %q missing from reference snapshot", row.RowNumber, row.Category)
		}
		measureID, ok := req.Snapshot.Measures[row.Measure]
		if !ok {
			return nil, fmt.Errorf("row %d: statistic %q missing from reference snapshot", row.RowNumber, row.Measure)
		}
		records = append(records, CommittedRecord{
			StateID:   stateID,
			MeasureID: measureID,
			Value:     row.Value,
			Year:      row.Year,
			SessionID: sessionID,
		})
	}

	var session ImportSession
	err := c.store.WithCommitTx(ctx, func(tx CommitTx) error {
		sourceID, err := tx.EnsureDataSource(ctx, c.dataSource)
		if err != nil {
			return fmt.Errorf("resolve data source: %w", err)
		}

		session, err = tx.CreateSession(ctx, ImportSession{
			ID:           sessionID,
			Name:         SessionName(req.FileName, req.Rows),
			ImportID:     req.ImportID,
			DataSourceID: sourceID,
			RecordCount:  len(records),
		})
		if err != nil {
			return fmt.Errorf("create import session: %w", err)
		}

		n, err := tx.InsertRecords(ctx, records)
		if err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
		if int(n) != len(records) {
			return fmt.Errorf("insert records: wrote %d of %d", n, len(records))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// SessionName derives a session name from the file name, the data year (or
// year range) and the row count, e.g. "population (2019-2021) - 150 rows".
func SessionName(fileName string, rows []NormalizedRow) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if base == "" || base == "." {
		base = "import"
	}

	minYear, maxYear := 0, 0
	for i, row := range rows {
		if i == 0 || row.Year < minYear {
			minYear = row.Year
		}
		if i == 0 || row.Year > maxYear {
			maxYear = row.Year
		}
	}

	years := fmt.Sprintf("%d", minYear)
	if maxYear != minYear {
		years = fmt.Sprintf("%d-%d", minYear, maxYear)
	}
	return fmt.Sprintf("%s (%s) - %d rows", base, years, len(rows))
}
