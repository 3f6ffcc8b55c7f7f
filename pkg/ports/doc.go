/*
Package ports defines the interfaces between the parley core and its adapters.

# Driven ports

  - GrammarLoader: retrieves raw grammar sources (Loam, files, memory, embedded skills).
  - SnapshotStore: persists conversation snapshots per session.
  - TranscriptStore: appends and reads the exchanges of a session.
  - DistributedLocker: serialises access to a session across replicas.

# Driving port

  - Conversation: what transport adapters (HTTP, MCP, MQTT) call to talk to sessions.
*/
package ports
