// Package shard discovers the shard topology of change streams and drives
// the leader tasks of stream sources.
//
// A Manager pages through a stream's shards with a Lister and keeps a
// parent → children Cache per stream. StreamTasks uses it as leader work:
// initialization validates the source and creates one partition per root
// shard; each refresh looks at shard partitions completed since the last
// tick and creates partitions for their children.
package shard
