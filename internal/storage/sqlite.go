package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotinalab/rotinabot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS routines (
			id TEXT PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			time_of_day TEXT NOT NULL,
			kind TEXT NOT NULL,
			single_date TEXT DEFAULT '',
			weekdays TEXT DEFAULT '',
			day_of_month INTEGER DEFAULT 0,
			timezone TEXT NOT NULL,
			is_task INTEGER DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			completed INTEGER DEFAULT 0,
			last_completion_at TEXT,
			next_occurrence TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routines_owner ON routines(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_routines_status ON routines(status)`,
		`CREATE INDEX IF NOT EXISTS idx_routines_next ON routines(next_occurrence)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

const routineColumns = `id, owner_id, message, time_of_day, kind, single_date, weekdays, day_of_month,
	timezone, is_task, status, completed, last_completion_at, next_occurrence, created_at`

// === Routines ===

func (s *Storage) CreateRoutine(r *domain.Routine) error {
	_, err := s.db.Exec(
		`INSERT INTO routines (id, owner_id, message, time_of_day, kind, single_date, weekdays, day_of_month, timezone, is_task, status, completed, last_completion_at, next_occurrence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Message, r.TimeOfDay, r.Kind, r.Date, encodeWeekdays(r.Weekdays), r.DayOfMonth,
		r.Timezone, r.IsTask, r.Status, r.Completed, formatLocal(r.LastCompletionAt), formatLocal(r.NextOccurrenceAt),
	)
	if err != nil {
		return err
	}
	r.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetRoutine(id string) (*domain.Routine, error) {
	row := s.db.QueryRow(`SELECT `+routineColumns+` FROM routines WHERE id = ?`, id)
	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Storage) ListRoutinesByOwner(ownerID int64) ([]*domain.Routine, error) {
	rows, err := s.db.Query(
		`SELECT `+routineColumns+` FROM routines WHERE owner_id = ? ORDER BY time_of_day, created_at`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoutines(rows)
}

// ListActiveRoutines returns every routine eligible for arming. The startup
// reconciler walks this list.
func (s *Storage) ListActiveRoutines() ([]*domain.Routine, error) {
	rows, err := s.db.Query(
		`SELECT ` + routineColumns + ` FROM routines WHERE status = 'active' ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoutines(rows)
}

// UpdateNextOccurrence writes only the next_occurrence field; nil clears it.
// The instant must already be expressed in the routine's timezone.
func (s *Storage) UpdateNextOccurrence(id string, at *time.Time) error {
	_, err := s.db.Exec(`UPDATE routines SET next_occurrence = ? WHERE id = ?`, formatLocal(at), id)
	return err
}

func (s *Storage) UpdateStatus(id string, status domain.Status) error {
	_, err := s.db.Exec(`UPDATE routines SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *Storage) SetCompleted(id string, completed bool, at *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE routines SET completed = ?, last_completion_at = ? WHERE id = ?`,
		completed, formatLocal(at), id,
	)
	return err
}

func (s *Storage) DeleteRoutine(id string) error {
	_, err := s.db.Exec(`DELETE FROM routines WHERE id = ?`, id)
	return err
}

// === Housekeeping sweeps ===

// DeleteSuspendedRoutines garbage-collects routines the user declined.
func (s *Storage) DeleteSuspendedRoutines() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM routines WHERE status = 'suspended'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteSpentSingleRoutines removes one-shot routines that already resolved.
func (s *Storage) DeleteSpentSingleRoutines() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM routines WHERE kind = 'single_date' AND status = 'inactive'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetStaleCompletions clears completion flags on recurring tasks whose
// cooldown reset timer was lost to a restart.
func (s *Storage) ResetStaleCompletions(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE routines SET completed = 0, last_completion_at = NULL
		 WHERE kind != 'single_date' AND is_task = 1 AND completed = 1
		 AND (last_completion_at IS NULL OR last_completion_at < ?)`,
		before.Format(domain.TimestampLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// === Scanning helpers ===

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoutine(row rowScanner) (*domain.Routine, error) {
	r := &domain.Routine{}
	var (
		weekdays       string
		lastCompletion sql.NullString
		nextOccurrence sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Message, &r.TimeOfDay, &r.Kind, &r.Date, &weekdays, &r.DayOfMonth,
		&r.Timezone, &r.IsTask, &r.Status, &r.Completed, &lastCompletion, &nextOccurrence, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Weekdays = decodeWeekdays(weekdays)
	loc := r.Location()
	if r.LastCompletionAt, err = parseLocal(lastCompletion, loc); err != nil {
		return nil, fmt.Errorf("parse last_completion_at: %w", err)
	}
	if r.NextOccurrenceAt, err = parseLocal(nextOccurrence, loc); err != nil {
		return nil, fmt.Errorf("parse next_occurrence: %w", err)
	}
	return r, nil
}

func collectRoutines(rows *sql.Rows) ([]*domain.Routine, error) {
	var routines []*domain.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

func formatLocal(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(domain.TimestampLayout)
}

func parseLocal(v sql.NullString, loc *time.Location) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(domain.TimestampLayout, v.String, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(v string) []time.Weekday {
	if v == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}
