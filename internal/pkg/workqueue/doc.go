// Package workqueue is a durable, priority-aware job queue on Redis.
//
// Ready jobs sit in one sorted set per priority, scored by the time they
// become due. Dequeue moves a job into an inflight set scored by its
// visibility deadline; Ack removes it, Retry schedules it again, and Reap
// returns jobs whose worker vanished. Urgent jobs are always taken before
// digest jobs.
package workqueue
