/*
Package ports defines the driven ports (interfaces) of the arbor engine.

These interfaces decouple the history engine from external implementations,
allowing documents and their history to live in memory, on disk, in Redis
or in SQLite.

# Key Interfaces

  - HistoryStore: persists and loads DocumentRecords (live document + history tree).
  - DistributedLocker: provides distributed locking for concurrent document access.
*/
package ports
