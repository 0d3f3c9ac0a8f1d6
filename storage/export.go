package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nutribot/config"
	"nutribot/model"
)

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
		"<", "-", ">", "-", "|", "-", " ", "-", "\n", "-", "\r", "-",
	)
	name = replacer.Replace(name)

	// Remove leading/trailing hyphens and dots
	name = strings.Trim(name, "-.")

	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}

	if name == "" {
		name = "conversation"
	}

	return name
}

// GenerateExportPath names an export file in the downloads directory
func GenerateExportPath(title string, now time.Time) string {
	downloadsDir := config.GetDownloadsDir()
	filename := fmt.Sprintf("nutribot-%s-%s.json", SanitizeFilename(title), now.Format("20060102-150405"))
	return filepath.Join(downloadsDir, filename)
}

// ExportConversation writes a conversation as indented JSON to exportPath
func ExportConversation(conv model.Conversation, exportPath string) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// Ensure directory exists (0700 - user-only access)
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to file (0600 - exports contain conversation history)
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
