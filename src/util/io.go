// io.go reads SimpleLang source files.
package util

import (
	"os"

	"tlog.app/go/errors"
)

// ReadSource reads the source file at path.
func ReadSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read source %q", path)
	}
	return string(b), nil
}
