package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"amber/internal/model"
)

// Open opens the amber database, migrates the relational schema and
// installs the FTS5 index with its sync triggers.
func Open(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := gdb.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := gdb.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if err := gdb.AutoMigrate(&model.Job{}, &model.JobRun{}, &model.Snapshot{}, &model.File{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	if err := migrateFTS(gdb); err != nil {
		return nil, err
	}

	return gdb, nil
}

// migrateFTS creates the external-content FTS5 table over files and the
// triggers that keep it in sync. The index is derived state: it can be
// rebuilt from the files table at any time.
func migrateFTS(gdb *gorm.DB) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			name,
			path,
			content=files,
			content_rowid=id,
			tokenize='unicode61 remove_diacritics 1'
		)`,
		`CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
			INSERT INTO files_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
			INSERT INTO files_fts(files_fts, rowid, name, path) VALUES('delete', old.id, old.name, old.path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
			INSERT INTO files_fts(files_fts, rowid, name, path) VALUES('delete', old.id, old.name, old.path);
			INSERT INTO files_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
		END`,
	}

	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to migrate FTS index: %w", err)
		}
	}

	return nil
}
