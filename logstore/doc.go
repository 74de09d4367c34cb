/*
Package logstore implements an append-only JSON-lines record store
whose last line is an index of all records.

Opening a store only reads the index line, found by seeking backwards
from the end of the file, so reopening a multi-gigabyte store is fast.
Reading a record seeks straight to its offset.

Writing a key that already exists appends the new record and moves the
old index entry to "<key>-backup-<n>". Slim() writes a copy without the
backups and Finalize() writes a compacted, gzip-compressed copy which
can only be read.
*/
package logstore
