// Package harness replays order sync scenarios deterministically.
//
// A scenario seeds the store with a snapshot, then runs steps that mirror
// what the sync engine sees on its timeline: raw push frames, later
// snapshots, item mutations and the passage of time. Assertions check the
// derived state afterwards, and RunWithGolden compares the trace and the
// rendered board with a golden file.
//
// # Scenario Format
//
//	name: push_after_snapshot
//	description: "Frames update orders seeded by the snapshot"
//	now: "2025-03-14T18:10:00"
//	snapshot:
//	  - public_id: A1
//	    table_number: 4
//	    waiter_name: Luca
//	    created_at: "2025-03-14T18:00:00"
//	    items:
//	      - {id: 1, name: Negroni, qty: 1, is_done: false}
//	steps:
//	  - push: {type: order_updated, order: {...}}
//	  - frame: '{"type": "order_created", "order": '
//	  - mutate: {order: A1, item: 1, done: true}
//	  - advance: 5m
//	assertions:
//	  - type: status
//	    order: A1
//	    expect: done
//	  - type: sequence
//	    orders: [B2, A1]
//
// # Assertion Types
//
//   - status: derived status of one order
//   - sequence: board order at the final instant
//   - size: number of stored orders
//   - item_done: done flag of one item
//   - elapsed: MM:SS timer of one order
//   - surfaced: how many events of a kind reached the caller
//
// # Determinism
//
// Time only moves with advance steps (testutil.ManualScheduler). Mutations
// go to an in-process remote that answers from the store, stamping ready_at
// with the scenario clock, so traces are identical across runs.
package harness
