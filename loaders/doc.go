// Package loaders reads raw files and pck values from many kinds of storage.
//
// A RawLoader lists files in a directory, a tar or zip archive, a remote
// directory over sftp or a prefix in a s3 bucket. A PckLoader reads values
// from .npz, .bolt, .jsonl and .jsonz files or from an in-memory map.
//
// Loaders discover keys once, when created, and open the backend again
// for reading. Loaders are not safe for concurrent use.
package loaders
