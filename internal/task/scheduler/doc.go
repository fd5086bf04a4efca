// Package scheduler registers recurring triggers (cron expressions or
// fixed intervals) and hands each firing to the task engine. It does not
// execute jobs itself.
package scheduler
