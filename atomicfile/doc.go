/*
Package atomicfile writes a file so that readers either see the old
content or the complete new content, never a partially written file.

Data goes to a temporary file in the destination directory. Close()
syncs it and renames it over the destination. Any error from Write(),
Sync() or Close() removes the temporary file and leaves the
destination untouched.

Store compaction (slim / finalize) and zip archive rewrites go
through this package:

	err := atomicfile.WriteFile(outPath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
*/
package atomicfile
