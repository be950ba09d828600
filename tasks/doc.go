/*
Package tasks turns pipeline stage parameters into lazy, sliceable sequences of
work descriptors.

Spatial stages walk a volume.ChunkGrid one z level at a time and hashed stages
walk a range of bucket indices.  Either way an Iterator is identified by its
level range, so it can be split with Slice or Partition and each part handed to
a separate queue worker without coordination:

	p := tasks.Planner{Volumes: provider}
	it, err := p.ChunkCCs(ctx, params)
	parts, err := tasks.Partition(it, 8)
	for d := range parts[0].All() {
		...
	}

Enumeration does no I/O and never logs per descriptor.
*/
package tasks
