/*
Package volume provides the geometry, logging, and small shared types used by
every other voltasks package.  It has no dependencies on other voltasks
packages.

The central type is ChunkGrid, which walks a bounding box in chunk-sized
steps one z-level at a time so task generation can be split along z without
materializing the chunk list.
*/
package volume
