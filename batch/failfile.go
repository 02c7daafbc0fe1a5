package batch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/errors"
)

// WriteFailureFile writes one failed item per line to path, replacing any
// previous file. A run without failures removes the previous file so it is
// never mistaken for the current run's list.
func WriteFailureFile(path string, failed []string) error {
	if path == "" {
		return nil
	}
	if len(failed) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove stale failure file %s", path)
		}
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "create directory for %s", path)
		}
	}
	content := strings.Join(failed, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write failure file %s", path)
	}
	return nil
}
