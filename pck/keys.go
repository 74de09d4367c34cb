package pck

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// CountKey is the reserved index entry holding the number of
	// records ever appended to a log store
	CountKey = "__RecordCount__"

	// DescriptionKey is the top-level key with a summary of the store
	DescriptionKey = "description"

	// MaxBackups limits the search for a free "<key>-backup-<n>" name
	MaxBackups = 999
)

// Group returns the part of key before the last '/', "" for top-level keys
func Group(key string) string {
	idx := strings.LastIndexByte(key, '/')
	if idx == -1 {
		return ""
	}
	return key[:idx]
}

// Base returns the part of key after the last '/'
func Base(key string) string {
	idx := strings.LastIndexByte(key, '/')
	if idx == -1 {
		return key
	}
	return key[idx+1:]
}

// JoinKey builds "group/name". Group "" or "/" means top-level.
func JoinKey(group, name string) string {
	if IsTopGroup(group) {
		return name
	}
	return group + "/" + name
}

// IsTopGroup returns true for the group names meaning "no group"
func IsTopGroup(group string) bool {
	return group == "" || group == "/"
}

// BackupKey returns the name an overwritten index entry is moved to
func BackupKey(key string, i int) string {
	return key + "-backup-" + strconv.Itoa(i)
}

// IsBackupKey returns true for names like "x-backup-3"
func IsBackupKey(key string) bool {
	parts := strings.Split(key, "-")
	n := len(parts)
	return n >= 3 && parts[n-2] == "backup"
}

// KeyOf converts a key given as a string or an integer to a string key
func KeyOf(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	}
	return fmt.Sprintf("%v", k)
}
