package durability

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// rename is replaced in tests to simulate failures and crashes.
var rename = os.Rename

// writeFileAtomic replaces path with data. The data goes to a temp file in
// the same directory, which is synced, closed, and renamed over path; a
// reader of path sees either the old content or the new, never a mix.
// beforeReplace, when set, runs once the temp file is complete.
func writeFileAtomic(path string, data []byte, beforeReplace func()) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if beforeReplace != nil {
		beforeReplace()
	}

	if err := replaceFile(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// replaceFile renames src over dst. Windows cannot rename onto an existing
// file, so dst is removed first there.
func replaceFile(src, dst string) error {
	if runtime.GOOS == "windows" {
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return rename(src, dst)
}
