// Package harness runs YAML query scenarios against a fresh store.
//
// A scenario seeds documents, declares models (relations, tree support and
// override hooks as data) and lists query steps with expectations:
//
//	name: projects
//	description: list and count the project fixtures
//	fixtures: [projects]
//	models:
//	  - name: test
//	steps:
//	  - name: all
//	    model: test
//	    query: {qType: allTotal, skip: 4, limit: 2}
//	    expect:
//	      shape: rowsTotal
//	      total: 5
//	      pluck: {name: ["Project Title 5"]}
//
// Every scenario runs in isolation with deterministic document ids. Step
// outputs can be compared against golden snapshots in testdata/golden; run
//
//	go test ./internal/harness -update
//
// to regenerate them.
package harness
