// Package work runs submitted jobs on a fixed pool of workers.
//
// A job is a (type, msgpack payload) pair. Submit persists a pending
// JobRecord and pushes an Envelope onto a Queue; a worker pops it, looks the
// type up in the Registry and runs it. State moves through
//
//	pending -> running -> succeeded
//	                   -> retrying -> running ...
//	                   -> failed
//
// and every transition is written to the job store so polling works from
// any process sharing the database. Two queues are provided: MemoryQueue
// (buffered channel, single process) and RedisQueue (LPUSH/BRPOP, shared by
// every process pointed at the same Redis).
package work
