// Package branch derives and validates git branch names for ticket work.
package branch

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxBranchNameLength is the maximum length for derived branch names,
// prefix included. Git itself allows longer names but derived names stay
// short enough to read in branch listings and PR titles.
const MaxBranchNameLength = 50

// MaxBranchNameValidation is the maximum length for user-provided branch
// names. This is more permissive than MaxBranchNameLength, which only
// applies to auto-derived names.
const MaxBranchNameValidation = 100

// validBranchNameRegex matches valid git branch name characters.
// Git branch names cannot contain: space, ~, ^, :, ?, *, [, \, or control
// characters. They also cannot start with - or end with .lock.
var validBranchNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.-]*$`)

// nonSlugRegex matches runs of characters that are collapsed to a single
// hyphen when sluggifying a ticket title.
var nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Derive produces a branch name of the form "tkt-<id>-<slug>" from a
// ticket id and title. The slug is the title lower-cased with every run
// of non-alphanumeric characters collapsed to a single hyphen and
// leading/trailing hyphens trimmed. The result is truncated to
// MaxBranchNameLength; hyphens left dangling by the cut are stripped.
// Derive never fails: an empty or all-punctuation title yields
// "tkt-<id>-" with an empty slug.
func Derive(ticketID int, title string) string {
	prefix := fmt.Sprintf("tkt-%d-", ticketID)

	slug := strings.ToLower(title)
	slug = nonSlugRegex.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if avail := MaxBranchNameLength - len(prefix); len(slug) > avail {
		if avail < 0 {
			avail = 0
		}
		slug = strings.TrimRight(slug[:avail], "-")
	}

	return prefix + slug
}

// Validate checks if a branch name is valid for git.
func Validate(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}

	if len(branch) > MaxBranchNameValidation {
		return fmt.Errorf("branch name too long (max %d characters)", MaxBranchNameValidation)
	}

	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}

	if strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch name cannot end with '.lock'")
	}

	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}

	if !validBranchNameRegex.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters (use letters, numbers, /, _, ., -)")
	}

	return nil
}
