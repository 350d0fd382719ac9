// Package core ingests the monthly home-visit exports of health facilities
// into a registry of children and their visits.
//
// The package holds all domain logic, independent of the HTTP layer and of
// the storage engine. Storage is reached through the [Registry] interface.
//
// # Ingestion
//
// An upload is an xlsx workbook with any number of sheets, each possibly a
// table of children with headers spelled freely and placed anywhere within
// the first [MaxHeaderSearchRows] rows. [Service.Ingest] runs:
//
//  1. [ReadWorkbook] reads every sheet raw
//  2. [DetectHeaderRow] finds the header of each sheet; sheets without one are skipped
//  3. [MapColumns] binds header cells to canonical [Field]s by alias
//  4. [Unify] groups rows by identity key in first-occurrence order
//  5. [PlanReconciliation] diffs the groups against the registry for the period
//  6. the plan is applied inside one registry transaction
//
// Reconciliation never deletes and never overwrites stored values with
// empty ones, so the same file can be uploaded again safely.
//
// # Concurrency
//
// Ingestion runs are bounded by an [IngestLimiter] and serialized per
// tenant by a [TenantLocker]. Sheets of one workbook are mapped in parallel.
//
// # Error Handling
//
// Technical errors are mapped to coded Spanish messages with [MapError]:
//
//   - DB001-DB008: registry errors (duplicates, constraints, connections)
//   - VAL001-VAL002: request validation
//   - FILE001-FILE005: upload and workbook errors
//   - ING001-ING005: ingestion runs and reports
package core
