package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsageBytes returns the total size in bytes of the given paths: the SQLite database,
// the memory-store snapshot and the local blob directory. Each path may be a file or a
// directory (summed recursively). Empty and missing paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
	}
	return total, nil
}

// sqliteSidecars lists the WAL files SQLite keeps next to dbPath.
func sqliteSidecars(dbPath string) []string {
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

// UsageBytes is DatabaseUsageBytes(dbPath) plus DiskUsageBytes(others...).
func UsageBytes(dbPath string, others ...string) (int64, error) {
	db, err := DatabaseUsageBytes(dbPath)
	if err != nil {
		return 0, err
	}
	rest, err := DiskUsageBytes(others...)
	if err != nil {
		return 0, err
	}
	return db + rest, nil
}

// DatabaseUsageBytes is DiskUsageBytes for a SQLite database including its WAL files.
func DatabaseUsageBytes(dbPath string) (int64, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return 0, nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return DiskUsageBytes(sqliteSidecars(dbPath)...)
}
