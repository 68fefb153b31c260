package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/vark-gateway/internal/domain"
	"github.com/ashureev/vark-gateway/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	conflictRetries   = 3
	conflictBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS students (
		student_id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		grade_band TEXT NOT NULL DEFAULT '',
		has_taken_assessment INTEGER NOT NULL DEFAULT 0,
		assessment_status TEXT NOT NULL DEFAULT '',
		learning_style TEXT NOT NULL DEFAULT '',
		vark_profile_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_students_parent ON students(parent_id);

	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		model TEXT NOT NULL,
		decision TEXT NOT NULL,
		evidence_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_student ON assessments(student_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetStudent retrieves a student by ID.
func (s *SQLiteStore) GetStudent(ctx context.Context, studentID string) (*domain.Student, error) {
	query := `
		SELECT student_id, parent_id, name, grade_band, has_taken_assessment,
		       assessment_status, learning_style, vark_profile_json, created_at, updated_at
		FROM students WHERE student_id = ?`

	var st domain.Student
	var gradeBand, status, style string
	var profileJSON sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, studentID).Scan(
		&st.StudentID, &st.ParentID, &st.Name, &gradeBand, &st.HasTakenAssessment,
		&status, &style, &profileJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan student row: %w", err)
	}

	st.GradeBand = domain.GradeBand(gradeBand)
	st.AssessmentStatus = domain.AssessmentStatus(status)
	st.LearningStyle = domain.LearningStyle(style)
	st.CreatedAt = time.Unix(createdAt, 0)
	st.UpdatedAt = time.Unix(updatedAt, 0)

	if profileJSON.Valid && profileJSON.String != "" {
		var profile domain.VarkProfile
		if err := json.Unmarshal([]byte(profileJSON.String), &profile); err != nil {
			return nil, fmt.Errorf("decode vark profile for %s: %w", studentID, err)
		}
		st.VarkProfile = &profile
	}

	return &st, nil
}

// UpsertStudent creates or updates a student's descriptive fields. Ownership
// is checked in the same statement as the write.
func (s *SQLiteStore) UpsertStudent(ctx context.Context, st *domain.Student) error {
	query := `
	INSERT INTO students (student_id, parent_id, name, grade_band, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(student_id) DO UPDATE SET
		name = excluded.name,
		grade_band = excluded.grade_band,
		updated_at = excluded.updated_at
	WHERE students.parent_id = excluded.parent_id`

	now := time.Now()
	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return shared.RetryOnConflict(ctx, conflictRetries, conflictBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query,
			st.StudentID, st.ParentID, st.Name, string(st.GradeBand),
			createdAt.Unix(), now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert student: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		// The conflict update is skipped when another parent owns the row.
		if rows == 0 {
			return ErrForbidden
		}
		return nil
	})
}

// UpdateStudent applies every set field of update in one UPDATE statement,
// so a completion write is never observed half-applied.
func (s *SQLiteStore) UpdateStudent(ctx context.Context, studentID string, update domain.StudentUpdate) error {
	var sets []string
	var args []any

	if update.HasTakenAssessment != nil {
		sets = append(sets, "has_taken_assessment = ?")
		args = append(args, *update.HasTakenAssessment)
	}
	if update.AssessmentStatus != nil {
		sets = append(sets, "assessment_status = ?")
		args = append(args, string(*update.AssessmentStatus))
	}
	if update.LearningStyle != nil {
		sets = append(sets, "learning_style = ?")
		args = append(args, string(*update.LearningStyle))
	}
	if update.VarkProfile != nil {
		data, err := json.Marshal(update.VarkProfile)
		if err != nil {
			return fmt.Errorf("encode vark profile: %w", err)
		}
		sets = append(sets, "vark_profile_json = ?")
		args = append(args, string(data))
	}
	if len(sets) == 0 {
		return nil
	}

	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt.Unix(), studentID)

	query := "UPDATE students SET " + strings.Join(sets, ", ") + " WHERE student_id = ?"

	return shared.RetryOnConflict(ctx, conflictRetries, conflictBaseDelay, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update student: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("UpdateStudent affected 0 rows", "student_id", studentID)
			return ErrNotFound
		}
		return nil
	})
}

// AddAssessment appends a history record.
func (s *SQLiteStore) AddAssessment(ctx context.Context, rec *domain.AssessmentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	query := `
	INSERT INTO assessments (id, parent_id, student_id, messages_json, result_json,
	                         model, decision, evidence_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, conflictRetries, conflictBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.ID, rec.ParentID, rec.StudentID, string(messagesJSON), string(resultJSON),
			rec.Model, string(rec.Decision), rec.EvidenceCount, rec.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert assessment: %w", err)
		}
		return nil
	})
}

// ListAssessments returns up to limit history records, newest first.
func (s *SQLiteStore) ListAssessments(ctx context.Context, studentID string, limit int) ([]*domain.AssessmentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, parent_id, student_id, messages_json, result_json,
		       model, decision, evidence_count, created_at
		FROM assessments WHERE student_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close assessment rows", "error", closeErr)
		}
	}()

	var records []*domain.AssessmentRecord
	for rows.Next() {
		var rec domain.AssessmentRecord
		var messagesJSON, resultJSON, decision string
		var createdAt int64

		if err := rows.Scan(
			&rec.ID, &rec.ParentID, &rec.StudentID, &messagesJSON, &resultJSON,
			&rec.Model, &decision, &rec.EvidenceCount, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan assessment row: %w", err)
		}
		if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
			return nil, fmt.Errorf("decode messages for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &rec.Result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", rec.ID, err)
		}
		rec.Decision = domain.Decision(decision)
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}

	return records, nil
}
