// Package harness runs planner scenarios as executable contract tests.
//
// A scenario names a stream catalog, a plan document and a compile
// configuration, then asserts on what compiling the plan produced: the
// dataflow topology, validation warnings, created destinations, or the
// error the plan was expected to fail with.
//
// # Scenario Format
//
//	name: revenue_by_region
//	description: "Shipped revenue per region, hourly"
//	catalog: ../specs          # directory of CUE stream specs
//	plan: ../plans/revenue.yaml
//	config:
//	  repartition: allow
//	  state_store_prefix: app-
//	assertions:
//	  - type: step_order
//	    ops: [SOURCE, FILTER, SOURCE, REPARTITION, JOIN]
//	  - type: step_count
//	    op: REPARTITION
//	    count: 2
//	  - type: stores
//	    stores: [app-join-customers-Join-store]
//	  - type: sink_created
//	    destination: revenue_by_region
//	    partitions: 4
//	  - type: warning_contains
//	    text: "repartitioned"
//
// A scenario that should fail names the error instead:
//
//	expect:
//	  error: CO_PARTITIONING
//	  contains: "partitions"
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory store with a fixed query id,
// so compiled output is identical across runs and can be compared against
// golden files.
package harness
