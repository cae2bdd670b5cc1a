// Package audit appends role lifecycle actions to a local log so every
// ephemeral identity created by the tool is traceable after the fact.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dir returns the audit directory, honoring STACKGRAFT_HOME for tests.
func Dir() string {
	if home := os.Getenv("STACKGRAFT_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".stackgraft")
}

// LogAction records one role action. Logging failures are swallowed:
// the audit trail must never mask the primary outcome.
func LogAction(action, roleName, reason string) {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}

	f, err := os.OpenFile(filepath.Join(dir, "audit.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	// Format: [DATE] CREATE stackgraft-validate-... - Reason: ...
	entry := fmt.Sprintf("[%s] %s %s - Reason: %s\n",
		time.Now().Format(time.RFC3339),
		action,
		roleName,
		reason,
	)

	if _, err := f.WriteString(entry); err != nil {
		fmt.Printf("(Warning: Failed to write audit log)\n")
	}
}

// Tail returns up to n most recent audit entries, oldest first.
func Tail(n int) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(Dir(), "audit.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
