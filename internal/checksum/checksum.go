// Package checksum computes and compares the MD5 digests used as the
// identity of cached artifacts.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// ErrMismatch is returned when a file's digest differs from the expected one.
var ErrMismatch = errors.New("checksum mismatch")

var md5Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Error describes a digest comparison that failed.
type Error struct {
	Path     string
	Expected string
	Got      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("checksum of %s is %s, expected %s", e.Path, e.Got, e.Expected)
}

func (e *Error) Unwrap() error { return ErrMismatch }

// Valid reports whether s is a well-formed MD5 hex digest.
func Valid(s string) bool {
	return md5Pattern.MatchString(s)
}

// Sum returns the lowercase hex MD5 digest of r.
func Sum(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the MD5 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, err := Sum(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return sum, nil
}

// Equal compares two digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Verify computes the digest of path and compares it with expected. It
// returns the computed digest together with an *Error when they differ.
func Verify(path, expected string) (string, error) {
	got, err := File(path)
	if err != nil {
		return "", err
	}
	if !Equal(got, expected) {
		return got, &Error{Path: path, Expected: expected, Got: got}
	}
	return got, nil
}

// Matches reports whether path exists and carries the expected digest.
// A missing or unreadable file simply does not match.
func Matches(path, expected string) bool {
	_, err := Verify(path, expected)
	return err == nil
}
