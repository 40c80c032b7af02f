// Package emulator is an in-process document database that runs generated
// aggregation programs the way a stored-procedure host would.
//
// Documents and registered programs live in SQLite. Programs run in a goja
// JavaScript runtime that exposes the server API the programs are written
// against:
//
//	getContext().getCollection().getSelfLink()
//	getContext().getCollection().queryDocuments(link, query, options, callback)
//	getContext().getResponse().setBody(body)
//
// queryDocuments understands the query shape the compiler produces:
//
//	SELECT * FROM root r [WHERE <predicate>] [ORDER BY r.a, r.b]
//
// # Budgets
//
// A real database refuses further queries once an invocation runs out of
// time or throughput. The emulator models this with a per-invocation batch
// budget: after MaxBatches accepted queries, queryDocuments returns false
// and the program must hand back its continuation. A negative budget
// refuses every query.
//
// # Continuations
//
// Page continuations are scan offsets within the ordered partition. They
// stay valid as long as the partition is not modified between calls.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package emulator
