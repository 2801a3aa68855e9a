package conversation

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// CheckpointStore persists thread state between turns.
type CheckpointStore interface {
	Save(state *State) error
	Load(threadID string) (*State, bool, error)
	Delete(threadID string) error
	ListThreads() ([]string, error)
	Close() error
}

// SQLiteCheckpointStore keeps one row per thread. SQLite gives atomic
// per-key writes without a separate server process.
type SQLiteCheckpointStore struct {
	db *sql.DB
}

// NewSQLiteCheckpointStore opens (or creates) the checkpoint database.
func NewSQLiteCheckpointStore(path string) (*SQLiteCheckpointStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, ragerror.NewStorage("conversation", "open_checkpoints",
			"failed to open checkpoint database", err).WithDetail("path", path)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS conversations (
		thread_id  TEXT PRIMARY KEY,
		state      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, ragerror.NewStorage("conversation", "open_checkpoints",
			"failed to create conversations table", err)
	}

	return &SQLiteCheckpointStore{db: db}, nil
}

func (s *SQLiteCheckpointStore) Save(state *State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return ragerror.NewStorage("conversation", "save_checkpoint",
			"failed to encode state", err).WithDetail("thread_id", state.ThreadID)
	}

	_, err = s.db.Exec(`INSERT INTO conversations (thread_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.ThreadID, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return ragerror.NewStorage("conversation", "save_checkpoint",
			"failed to write state", err).WithDetail("thread_id", state.ThreadID)
	}
	return nil
}

func (s *SQLiteCheckpointStore) Load(threadID string) (*State, bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT state FROM conversations WHERE thread_id = ?`,
		threadID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ragerror.NewStorage("conversation", "load_checkpoint",
			"failed to read state", err).WithDetail("thread_id", threadID)
	}

	var state State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, false, ragerror.NewStorage("conversation", "load_checkpoint",
			"failed to decode state", err).WithDetail("thread_id", threadID)
	}
	return &state, true, nil
}

func (s *SQLiteCheckpointStore) Delete(threadID string) error {
	if _, err := s.db.Exec(`DELETE FROM conversations WHERE thread_id = ?`, threadID); err != nil {
		return ragerror.NewStorage("conversation", "delete_checkpoint",
			"failed to delete state", err).WithDetail("thread_id", threadID)
	}
	return nil
}

func (s *SQLiteCheckpointStore) ListThreads() ([]string, error) {
	rows, err := s.db.Query(`SELECT thread_id FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, ragerror.NewStorage("conversation", "list_checkpoints",
			"failed to list threads", err)
	}
	defer rows.Close()

	var threads []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ragerror.NewStorage("conversation", "list_checkpoints",
				"failed to scan thread id", err)
		}
		threads = append(threads, id)
	}
	return threads, rows.Err()
}

func (s *SQLiteCheckpointStore) Close() error { return s.db.Close() }
