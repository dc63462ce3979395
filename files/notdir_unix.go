//go:build !windows

package files

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}
