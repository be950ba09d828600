// Package storage opens cloud and local object buckets from storage references
// and moves files between local disk and buckets.
package storage
