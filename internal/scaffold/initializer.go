package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the Warren workspace structure under dir: warren.yml,
// a starter TASKS.md monolith, and the tasks/ directory for per-task
// documents. If force is true, existing warren.yml and TASKS.md are
// replaced; the tasks/ directory is never deleted because it may hold real
// task documents.
func Initialize(dir string, force bool) error {
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return err
	}

	if err := createDirectories(dir); err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	return validateCreatedFiles(dir)
}

// handleForce removes replaceable files if --force was specified
func handleForce(dir string) error {
	for _, name := range []string{"warren.yml", "TASKS.md"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("⚠️  Removing existing %s...\n", name)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
		}
	}
	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles(dir string) ([]FileInfo, error) {
	files := []FileInfo{}

	warrenYml, err := templatesFS.ReadFile("templates/warren.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read warren.yml template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join(dir, "warren.yml"),
		Content:     warrenYml,
		Permissions: 0644,
	})

	tasksMd, err := templatesFS.ReadFile("templates/TASKS.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read TASKS.md template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join(dir, "TASKS.md"),
		Content:     tasksMd,
		Permissions: 0644,
	})

	return files, nil
}

// createDirectories creates the necessary directory structure
func createDirectories(dir string) error {
	dirs := []string{
		filepath.Join(dir, "tasks"),
		filepath.Join(dir, ".warren"),
	}

	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	return nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles validates that created files are correct
func validateCreatedFiles(dir string) error {
	content, err := os.ReadFile(filepath.Join(dir, "warren.yml"))
	if err != nil {
		return fmt.Errorf("failed to read created warren.yml: %w", err)
	}

	var yamlData interface{}
	if err := yaml.Unmarshal(content, &yamlData); err != nil {
		return fmt.Errorf("created warren.yml is not valid YAML: %w", err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized Warren workspace!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ warren.yml")
	fmt.Println("  ✓ TASKS.md")
	fmt.Println("  ✓ tasks/")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add '.warren/' to your .gitignore file")
	fmt.Println("  2. Record your tasks in TASKS.md")
	fmt.Println("  3. Run 'warren sync' to populate the per-task documents")
}
