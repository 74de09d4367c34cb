// Package npy reads and writes single arrays in NumPy .npy format (version 1.0),
// the members of .npz archives.
package npy
