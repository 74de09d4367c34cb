package pck

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kjk/pckstore/u"
)

// CheckWritable returns ErrPathAccess if path exists and overwrite is false
// or if the directory of path doesn't exist or isn't writable
func CheckWritable(path string, overwrite bool) error {
	st, err := os.Stat(path)
	if err == nil {
		if st.IsDir() {
			return fmt.Errorf("%w: '%s' is a directory", ErrPathAccess, path)
		}
		if !overwrite {
			return fmt.Errorf("%w: '%s' exists and overwrite is not set", ErrPathAccess, path)
		}
		return nil
	}
	dir := filepath.Dir(path)
	if !u.DirWritable(dir) {
		return fmt.Errorf("%w: directory of '%s' is not writable", ErrPathAccess, path)
	}
	return nil
}
