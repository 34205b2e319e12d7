// Package core drives ledger imports from file intake to commit.
//
// It holds the domain workflow independent of any transport. The web
// handlers and the tests drive the same [Coordinator].
//
// # Sessions
//
// Every upload becomes a session with a [State]. CSV files are parsed
// synchronously and wait in [StateMapping] for the operator to confirm the
// proposed column mapping:
//
//	idle -> mapping -> reviewing -> committed
//
// Documents (PDFs, images) are posted to the extraction service under a
// fresh correlation key. A poller then reads the staging store until the
// result shows up, the attempt budget runs out, or the session is cancelled:
//
//	idle -> dispatched -> polling -> ready -> reviewing -> committed
//	                         |
//	                         +-> timed_out -> polling (RetryPoll)
//	                         +-> failed
//
// Every unfinished state may move to cancelled. Committed, failed and
// cancelled sessions are terminal and are pruned after a retention period.
//
// # Review
//
// Reviewing sessions hold destination-keyed records that can be edited row
// by row. Each edit revalidates the whole set; [Coordinator.Commit] refuses
// to write while any row carries an error and sends the rest to the
// transaction store as one all-or-nothing batch.
//
// # Audit
//
// With [Options.Audit] set, lifecycle events and review edits are queued
// for a ledger.AuditStore and written in the background. Audit failures are
// logged and never fail the import.
//
// # Errors
//
// [MapError] turns technical errors into [UserMessage] values with support
// codes for display. See error_messages.go for the code reference.
package core
