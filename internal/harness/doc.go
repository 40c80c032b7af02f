// Package harness runs aggregation scenarios end to end against the
// in-process emulator.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: store_totals
//	description: "Totals per store across two pages"
//	definition: ../definitions/store_totals.yaml
//	emulator:
//	  page_size: 2
//	documents:
//	  p1:
//	    - {id: "1", storeId: A, amount: 2.5}
//	queries:
//	  - partition: p1
//	    max_items: 0
//	    pages:
//	      - results: [{count: 1, storeId: A}]
//	        done: true
//	assertions:
//	  - type: result_count
//	    count: 1
//
// Each query runs the definition's pipeline once per listed page, in order.
// A query with resume set starts from the continuation the previous query
// stopped at, in a fresh driver query. A page may expect a driver error code
// instead of results.
//
// # Assertion Types
//
//   - results: the concatenated results of every query equal the list
//   - result_count: the total number of results
//   - program_count: the number of programs registered in the emulator
//   - document_count: the number of documents stored in a partition
//
// # Deterministic Runs
//
// Every scenario runs in a fresh in-memory emulator with fixed activity and
// document ids, so page traces compare byte for byte against golden files.
package harness
