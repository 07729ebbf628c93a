// Package harness runs reconciliation scenarios end to end.
//
// A scenario seeds one job assignment, scripts the external system, and
// delivers a sequence of completion notifications through the real
// engine, lock coordinator, aggregator and SQLite store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: label_detection_paginated
//	description: "What this scenario validates"
//	assignment:
//	  guid: g1
//	  status: Running
//	  input_file: https://media.example.com/clips/clip.mp4
//	external:
//	  pages:
//	    - '{"JobStatus":"SUCCEEDED","Labels":[]}'
//	  failures:
//	    t2: gateway unavailable
//	steps:
//	  - notification:
//	      kind: labelDetection
//	      status: SUCCEEDED
//	      job_id: job-1
//	    expect:
//	      outcome: completed
//	      artifacts: 1
//	final:
//	  status: Completed
//	  outputs: 1
//
// Pages chain in order: the first is served for an empty token, the
// second for "t2", and so on. Failures map a page token, transcription
// job name or download URL to an error message.
//
// # Deterministic Execution
//
// Every run uses a fresh in-memory database, a manual clock fixed at
// Scenario.Clock (default 2024-03-01T12:00:05Z), lock holders
// "holder-1", "holder-2", ... in step order, and a fixed signing key.
// The same scenario therefore always yields the same snapshot, which
// RunWithGolden compares against testdata/golden/{name}.golden.
package harness
