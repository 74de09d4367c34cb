/*
Package boltstore is a hierarchical dataset file on top of bbolt.

Groups map to nested buckets and datasets to values in them.
Values are encoded with pck codec, prefixed with a flag byte.
Values of CompressThreshold bytes or more are compressed with zstd.
*/
package boltstore
