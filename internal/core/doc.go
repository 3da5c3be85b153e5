// Package core provides the business logic for bulk statistic imports.
//
// This package contains all domain logic independent of any transport or
// storage layer. It can be used by web handlers, CLI tools, or tests without
// modification; persistence is reached only through the [Store] interface.
//
// # Architecture
//
// The package is organized around a linear pipeline:
//
//   - Dedup gate: every upload is hashed with [ContentHash]. A hash that
//     already exists short-circuits the pipeline with a duplicate result.
//   - Parsing: [ParseTable] turns CSV (or .xlsx) bytes into [RawRow] values
//     keyed by header name.
//   - Validation: [RowValidator] checks required fields, data types and
//     business rules per row. [ValidationRunner] then batch-loads reference
//     entities through [ReferenceResolver] and checks that every state,
//     category and statistic exists.
//   - Commit: [ImportCommitter] writes an [ImportSession] and every record in
//     one transaction, and only when the whole file is valid.
//   - Audit: [AuditLog] records lifecycle events, every validation failure
//     and system errors, and exports failed rows as CSV.
//
// [Service] ties these together and owns the import status machine:
//
//	uploaded -> validating -> validation_failed
//	                       -> importing -> imported
//	                                    -> failed
//
// Every started import ends in exactly one terminal status.
//
// # Concurrency
//
// [ImportLimiter] bounds how many imports run at once. Imports are
// independent; two uploads of identical bytes race on the content hash
// unique constraint and the loser reports the winner as a duplicate.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL006: Validation errors (types, ranges, references)
//   - FILE001-FILE006: File errors (size, encoding, format)
//   - IMP001-IMP004: Import lifecycle errors (duplicate, state, not found)
//   - UPL001-UPL003: Request errors (busy, cancelled, timeout)
package core
