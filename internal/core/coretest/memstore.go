// Package coretest provides an in-memory core.Store for tests.
package coretest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/statimport/internal/core"
	"github.com/google/uuid"
)

// Store is an in-memory core.Store. It enforces the content hash unique
// constraint and the status transition table, and rolls back commit writes
// when the transaction function fails.
type Store struct {
	mu sync.Mutex

	nextImportID int64
	nextLogID    int64
	nextRefID    int64

	imports   map[int64]core.ImportRecord
	byHash    map[string]int64
	logs      []core.ImportLog
	summaries map[int64]map[core.SummaryPhase]core.ValidationSummary

	states      map[string]int64
	categories  map[string]int64
	measures    map[string]int64
	dataSources map[string]int64

	Sessions []core.ImportSession
	Records  []core.CommittedRecord

	// Failure injection. A non-nil error is returned by the matching call.
	InsertRecordsErr  error
	CreateSessionErr  error
	ReferenceErr      error
	AppendLogsErr     error
	FindByHashErr     error
	PanicOnReferences bool

	// StatusErr fails UpdateImportStatus for the given target status.
	StatusErr map[core.ImportStatus]error

	// FailLogMessage fails AppendLogs for any batch containing an entry
	// with this message.
	FailLogMessage string

	// BeforeCreate runs inside CreateImport before the hash is checked.
	BeforeCreate func()

	// ReferenceQueries counts calls to the name lookup methods.
	ReferenceQueries int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		imports:     make(map[int64]core.ImportRecord),
		byHash:      make(map[string]int64),
		summaries:   make(map[int64]map[core.SummaryPhase]core.ValidationSummary),
		states:      make(map[string]int64),
		categories:  make(map[string]int64),
		measures:    make(map[string]int64),
		dataSources: make(map[string]int64),
	}
}

// Seed adds reference entities. Each argument list is a set of names.
func (s *Store) Seed(states, categories, measures []string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range states {
		s.nextRefID++
		s.states[n] = s.nextRefID
	}
	for _, n := range categories {
		s.nextRefID++
		s.categories[n] = s.nextRefID
	}
	for _, n := range measures {
		s.nextRefID++
		s.measures[n] = s.nextRefID
	}
	return s
}

// DeleteState removes a state, as a concurrent reference edit would.
func (s *Store) DeleteState(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, name)
}

// StateID returns the id assigned to a seeded state.
func (s *Store) StateID(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

// ImportCount returns the number of ImportRecords.
func (s *Store) ImportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.imports)
}

// LogsFor returns every entry for an import in write order.
func (s *Store) LogsFor(importID int64) []core.ImportLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ImportLog
	for _, l := range s.logs {
		if l.ImportID == importID {
			out = append(out, l)
		}
	}
	return out
}

// SummaryFor returns the summary stored for one phase.
func (s *Store) SummaryFor(importID int64, phase core.SummaryPhase) (core.ValidationSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[importID][phase]
	return sum, ok
}

func (s *Store) FindImportByHash(_ context.Context, hash string) (core.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindByHashErr != nil {
		return core.ImportRecord{}, s.FindByHashErr
	}
	id, ok := s.byHash[hash]
	if !ok {
		return core.ImportRecord{}, core.ErrNotFound
	}
	return s.imports[id], nil
}

func (s *Store) CreateImport(_ context.Context, params core.NewImport) (core.ImportRecord, error) {
	if s.BeforeCreate != nil {
		s.BeforeCreate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[params.ContentHash]; ok {
		return core.ImportRecord{}, core.ErrDuplicateContent
	}
	s.nextImportID++
	now := time.Now()
	rec := core.ImportRecord{
		ID:          s.nextImportID,
		Name:        params.Name,
		FileName:    params.FileName,
		FileSize:    params.FileSize,
		ContentHash: params.ContentHash,
		Status:      core.StatusUploaded,
		UploadedBy:  params.UploadedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.imports[rec.ID] = rec
	s.byHash[rec.ContentHash] = rec.ID
	return rec, nil
}

func (s *Store) UpdateImportStatus(_ context.Context, id int64, status core.ImportStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.imports[id]
	if !ok {
		return core.ErrNotFound
	}
	if !rec.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, rec.Status, status)
	}
	if err := s.StatusErr[status]; err != nil {
		return err
	}
	now := time.Now()
	rec.Status = status
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = now
	if status.Terminal() {
		rec.CompletedAt = &now
	}
	s.imports[id] = rec
	return nil
}

func (s *Store) GetImport(_ context.Context, id int64) (core.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.imports[id]
	if !ok {
		return core.ImportRecord{}, core.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListImports(_ context.Context, limit, offset int) ([]core.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]core.ImportRecord, 0, len(s.imports))
	for _, rec := range s.imports {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []core.ImportRecord{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) AppendLogs(_ context.Context, entries []core.ImportLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendLogsErr != nil {
		return s.AppendLogsErr
	}
	for _, e := range entries {
		if s.FailLogMessage != "" && e.Message == s.FailLogMessage {
			return fmt.Errorf("append %q: connection reset", e.Message)
		}
	}
	for _, e := range entries {
		s.nextLogID++
		e.ID = s.nextLogID
		e.CreatedAt = time.Now()
		s.logs = append(s.logs, e)
	}
	return nil
}

func (s *Store) ListLogs(_ context.Context, importID int64) ([]core.ImportLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ImportLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].ImportID == importID {
			out = append(out, s.logs[i])
		}
	}
	return out, nil
}

func (s *Store) ListLogsByLevel(_ context.Context, importID int64, level core.LogLevel) ([]core.ImportLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ImportLog
	for _, l := range s.logs {
		if l.ImportID == importID && l.Level == level {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) SaveSummary(_ context.Context, summary core.ValidationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaries[summary.ImportID] == nil {
		s.summaries[summary.ImportID] = make(map[core.SummaryPhase]core.ValidationSummary)
	}
	summary.CreatedAt = time.Now()
	s.summaries[summary.ImportID][summary.Phase] = summary
	return nil
}

func (s *Store) LatestSummary(_ context.Context, importID int64) (core.ValidationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	phases := s.summaries[importID]
	if sum, ok := phases[core.PhaseCommit]; ok {
		return sum, nil
	}
	if sum, ok := phases[core.PhaseValidation]; ok {
		return sum, nil
	}
	return core.ValidationSummary{}, core.ErrNotFound
}

func (s *Store) StatesByName(_ context.Context, names []string) (map[string]int64, error) {
	return s.lookup(s.states, names)
}

func (s *Store) CategoriesByName(_ context.Context, names []string) (map[string]int64, error) {
	return s.lookup(s.categories, names)
}

func (s *Store) MeasuresByName(_ context.Context, names []string) (map[string]int64, error) {
	return s.lookup(s.measures, names)
}

// DataSourceID returns the id of a committed data source.
func (s *Store) DataSourceID(name string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.dataSources[name]
	return id, ok
}

func (s *Store) lookup(table map[string]int64, names []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PanicOnReferences {
		panic("reference lookup exploded")
	}
	s.ReferenceQueries++
	if s.ReferenceErr != nil {
		return nil, s.ReferenceErr
	}
	out := make(map[string]int64, len(names))
	for _, n := range names {
		if id, ok := table[n]; ok {
			out[n] = id
		}
	}
	return out, nil
}

// WithCommitTx stages writes and applies them only if fn succeeds.
func (s *Store) WithCommitTx(_ context.Context, fn func(tx core.CommitTx) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range tx.dataSources {
		s.dataSources[name] = id
	}
	s.Sessions = append(s.Sessions, tx.sessions...)
	s.Records = append(s.Records, tx.records...)
	return nil
}

type memTx struct {
	store       *Store
	dataSources map[string]int64
	sessions    []core.ImportSession
	records     []core.CommittedRecord
}

func (t *memTx) EnsureDataSource(_ context.Context, name string) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if id, ok := t.store.dataSources[name]; ok {
		return id, nil
	}
	if id, ok := t.dataSources[name]; ok {
		return id, nil
	}
	t.store.nextRefID++
	if t.dataSources == nil {
		t.dataSources = make(map[string]int64)
	}
	t.dataSources[name] = t.store.nextRefID
	return t.store.nextRefID, nil
}

func (t *memTx) CreateSession(_ context.Context, session core.ImportSession) (core.ImportSession, error) {
	if t.store.CreateSessionErr != nil {
		return core.ImportSession{}, t.store.CreateSessionErr
	}
	if session.ID == uuid.Nil {
		return core.ImportSession{}, fmt.Errorf("session id is required")
	}
	session.CreatedAt = time.Now()
	t.sessions = append(t.sessions, session)
	return session, nil
}

func (t *memTx) InsertRecords(_ context.Context, records []core.CommittedRecord) (int64, error) {
	if t.store.InsertRecordsErr != nil {
		return 0, t.store.InsertRecordsErr
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, r := range records {
		if !containsID(t.store.states, r.StateID) {
			return 0, fmt.Errorf(`insert or update on table "statistic_values" violates foreign key constraint "statistic_values_state_id_fkey"`)
		}
	}
	t.records = append(t.records, records...)
	return int64(len(records)), nil
}

func containsID(table map[string]int64, id int64) bool {
	for _, v := range table {
		if v == id {
			return true
		}
	}
	return false
}

var _ core.Store = (*Store)(nil)
