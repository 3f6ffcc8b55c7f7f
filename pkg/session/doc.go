/*
Package session runs many conversations on a pool of parley machines.

A Manager implements ports.Conversation. Each call locks the session (locally
and, when configured, through a ports.DistributedLocker), restores its
snapshot into a pooled machine, runs the operation, persists the new snapshot
and appends the exchange to an optional transcript store. Machines hold no
session state between calls, so any replica can serve any session.
*/
package session
