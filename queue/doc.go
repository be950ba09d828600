// Package queue delivers task descriptors to work queues.  Populate splits a
// tasks.Iterator into slices and feeds them concurrently to a Sink, which may
// publish to Kafka, write batch objects to a bucket, or print commands.
package queue
