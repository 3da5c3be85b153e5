package core

import (
	"strings"
	"testing"
	"time"

	db "github.com/JonMunkholm/statimport/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestLogsFromRows(t *testing.T) {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := []db.ImportLog{
		{
			ID:              2,
			ImportID:        7,
			Level:           string(LevelValidationError),
			RowNumber:       pgtype.Int4{Int32: 3, Valid: true},
			FieldName:       ToPgText("state"),
			FieldValue:      ToPgText("Atlantis"),
			FailureCategory: ToPgText(string(CategoryInvalidReference)),
			Message:         `Unknown state: "Atlantis"`,
			Details:         []byte(`{"code":"VAL006"}`),
			CreatedAt:       pgtype.Timestamptz{Time: created, Valid: true},
		},
		{ID: 1, ImportID: 7, Level: string(LevelInfo), Message: "Import started"},
	}

	logs, err := logsFromRows(rows)
	if err != nil {
		t.Fatalf("logsFromRows() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	first := logs[0]
	if first.Category != CategoryInvalidReference || first.RowNumber == nil || *first.RowNumber != 3 {
		t.Errorf("first = %+v", first)
	}
	if first.Details["code"] != "VAL006" || !first.CreatedAt.Equal(created) {
		t.Errorf("first details/created = %v / %v", first.Details, first.CreatedAt)
	}
	if logs[1].Category != "" || logs[1].RowNumber != nil || logs[1].Details != nil {
		t.Errorf("info entry = %+v", logs[1])
	}
}

func TestLogsFromRows_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		row     db.ImportLog
		wantErr string
	}{
		{
			name:    "unknown category",
			row:     db.ImportLog{ID: 9, FailureCategory: ToPgText("spelling")},
			wantErr: `unknown failure category "spelling"`,
		},
		{
			name:    "malformed details",
			row:     db.ImportLog{ID: 9, Details: []byte("{")},
			wantErr: "decode log 9 details",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := logsFromRows([]db.ImportLog{tt.row})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("logsFromRows() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFailureCategoryValid(t *testing.T) {
	for _, c := range FailureCategories {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if FailureCategory("spelling").Valid() || FailureCategory("").Valid() {
		t.Error("unknown categories should be invalid")
	}
}
