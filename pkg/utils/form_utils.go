package utils

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// NormalizeFields collapses a multipart value multimap into one value per key.
// The first submitted value wins; keys without any value are dropped.
func NormalizeFields(raw map[string][]string) map[string]string {
	fields := make(map[string]string, len(raw))
	for key, values := range raw {
		if len(values) == 0 {
			continue
		}
		fields[key] = values[0]
	}
	return fields
}

// SafeFilename strips any directory component a client put in the filename.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return "upload"
	}
	return name
}

// RenameCandidate returns the n-th alternative for a colliding name, in the
// "report (1).pdf" form. n == 0 returns the name unchanged.
func RenameCandidate(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// ResponseTooLargeError reports that a provider response exceeded the limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// IsResponseTooLarge reports whether err is a ResponseTooLargeError.
func IsResponseTooLarge(err error) bool {
	var limitErr ResponseTooLargeError
	return errors.As(err, &limitErr)
}

// ReadAllWithLimit reads r up to limit bytes. limit <= 0 means no limit.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}
