// Package plan is the logical query plan for streaming SQL queries.
//
// A plan is a tree of immutable operator nodes built bottom-up by an
// upstream analyzer. Every node derives its output schema, key field and
// output type (stream or table) from its sources when it is constructed, and
// never changes them afterwards.
//
// NODE VARIANTS:
//
// Node is a sealed interface. The closed set of variants is:
//   - ScanNode: reads a named stream or table (leaf)
//   - FilterNode: drops records failing a predicate
//   - ProjectNode: evaluates one expression per output column
//   - AggregateNode: groups and aggregates, optionally windowed
//   - JoinNode: joins two co-partitioned sources
//   - SinkNode: writes the result to a named destination
//
// PASSES:
//
// Passes over a plan implement Visitor. Adding a pass never touches the node
// types; adding a node variant adds a method to Visitor and therefore breaks
// every visitor at compile time. Validate, Explain and MarshalDocument are
// passes in this package.
//
// COMPILATION:
//
// Compile drives an external Builder. Each node compiles its sources first,
// left before right, then asks the Builder to apply its own operator to the
// resulting handle. The first error aborts the pass; there is no partial
// result. Partition counts come from a PartitionOracle, and sinks consult a
// DestinationCatalog.
//
// ERRORS:
//
// Plan errors are *Error values with a Code of CONFIGURATION,
// QUERY_DEFINITION or CO_PARTITIONING, always naming the node at fault.
// Errors from the Builder, oracle and catalog are returned unchanged.
package plan
