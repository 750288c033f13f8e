package checkpoint

import (
	"fmt"
	"strings"
)

// MinPrefixLength is the minimum required length for checkpoint ID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinPrefixLength = 6

// Resolve expands a checkpoint ID prefix to a full UUID, the way git expands
// short commit hashes. A full UUID is verified and returned as-is. A prefix
// must match exactly one checkpoint.
func (m *Manager) Resolve(shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if _, err := m.load(shortID); err != nil {
			return "", err
		}
		return shortID, nil
	}

	if len(shortID) < MinPrefixLength {
		return "", fmt.Errorf("checkpoint ID prefix must be at least %d characters (got %d)", MinPrefixLength, len(shortID))
	}

	metas, err := m.List()
	if err != nil {
		return "", fmt.Errorf("failed to search for checkpoint: %w", err)
	}

	var matches []string
	for _, meta := range metas {
		if strings.HasPrefix(meta.ID, shortID) {
			matches = append(matches, meta.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", ErrCheckpointNotFound
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousIDError{ShortID: shortID, Matches: matches}
	}
}

// AmbiguousIDError indicates multiple checkpoints matched the prefix.
type AmbiguousIDError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("ambiguous checkpoint ID '%s' matches %d checkpoints", e.ShortID, len(e.Matches))
}

// FormatAmbiguousIDError lists the colliding checkpoint IDs (up to 10,
// then "...and N more") with a hint to lengthen the prefix.
func FormatAmbiguousIDError(err *AmbiguousIDError) string {
	msg := fmt.Sprintf("ambiguous checkpoint ID '%s' matches %d checkpoints:\n", err.ShortID, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the checkpoint."
	return msg
}
