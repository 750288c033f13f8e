package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting checks if warren.yml or TASKS.md already exist under dir.
// Returns an error if they do, nil otherwise
func CheckExisting(dir string) error {
	var existingFiles []string

	if _, err := os.Stat(filepath.Join(dir, "warren.yml")); err == nil {
		existingFiles = append(existingFiles, "warren.yml")
	}

	if _, err := os.Stat(filepath.Join(dir, "TASKS.md")); err == nil {
		existingFiles = append(existingFiles, "TASKS.md")
	}

	if len(existingFiles) > 0 {
		errMsg := "workspace already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'warren init --force' to reinitialize (this will overwrite existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
