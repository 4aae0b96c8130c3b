// Package audit records who changed what in a family account.
//
// Every committed mutation produces one AuditEvent with the acting user, the
// account, the affected resource and, for updates, before/after values.
// Events are written after the store transaction commits; a failing audit
// sink is logged and never rolls back the mutation.
//
// # Sinks
//
//	audit.NewLogrusLogger(logger)      // structured log lines tagged audit=true
//	audit.NewMemoryLogger()            // in-process, used by tests and dev mode
//	postgres.NewAuditLogger(db)        // family_audit_events table
//	audit.NewMultiLogger(a, b)         // fan out to several sinks
package audit
