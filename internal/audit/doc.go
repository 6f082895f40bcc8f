// Package audit reconciles what the system of record says about preserved
// files against what the two storage tiers actually hold.
//
// The flow for one object is:
//
//	oa, err := audit.Summarize(obj) // CheckKeys for every file, then aggregate
//	actions := audit.Plan(oa)       // idempotent remediation steps
//
// Everything in this package is pure computation over a PreservedObject; I/O
// lives in the repositories, the storage client and the auditor service.
package audit
