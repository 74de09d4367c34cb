// Package zipstore stores JSON records as members of a zip archive (.jsonz),
// one member per key.
package zipstore
