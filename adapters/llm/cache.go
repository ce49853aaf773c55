package llm

import (
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shandley/crucible/internal/errors"
)

// MemoryCache is a process-local response cache. Reads take the read lock;
// only insertion writes.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]string{}}
}

func (c *MemoryCache) Get(promptHash, model string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[promptHash+"|"+model]
	return v, ok
}

func (c *MemoryCache) Put(promptHash, model, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[promptHash+"|"+model] = response
	return nil
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS llm_responses (
	prompt_hash TEXT NOT NULL,
	model       TEXT NOT NULL,
	response    TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (prompt_hash, model)
);`

// SQLiteCache persists responses across runs, keyed (prompt hash, model).
type SQLiteCache struct {
	db *sqlx.DB
}

// OpenSQLiteCache opens (creating if needed) a cache database at path.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Persistence("open llm cache", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, errors.Persistence("initialize llm cache schema", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(promptHash, model string) (string, bool) {
	var response string
	err := c.db.Get(&response,
		`SELECT response FROM llm_responses WHERE prompt_hash = ? AND model = ?`,
		promptHash, model)
	if err == sql.ErrNoRows || err != nil {
		return "", false
	}
	return response, true
}

func (c *SQLiteCache) Put(promptHash, model, response string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO llm_responses (prompt_hash, model, response, created_at)
		 VALUES (?, ?, ?, ?)`,
		promptHash, model, response, time.Now().UTC())
	if err != nil {
		return errors.Persistence("write llm cache entry", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
