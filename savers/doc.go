// Package savers writes groups of values to .npz, .bolt, .jsonl and .jsonz
// files or to an in-memory map. Files written by savers are read with
// package loaders.
package savers
