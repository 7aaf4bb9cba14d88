package core

import (
	"fmt"
	"regexp"
)

// Author identifiers become directory names and git signatures, so they
// are restricted to a conservative character set. The first character
// must be alphanumeric; path traversal sequences can never match.
var authorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-_.\s]+$`)

// ValidateAuthor checks an author identifier against the allowed pattern.
func ValidateAuthor(author string) error {
	if !authorPattern.MatchString(author) {
		return fmt.Errorf("%w: %q", ErrInvalidAuthor, author)
	}
	return nil
}

// AuthorEmail derives the synthetic signature email for an author.
func AuthorEmail(author string) string {
	return author + "@t29-inventory-server"
}
