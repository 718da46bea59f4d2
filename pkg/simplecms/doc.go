// Package simplecms provides a reusable library for page composition and
// content versioning with pluggable repository, locking and event backends.
//
// It exposes a single Service interface that orchestrates creation of pages,
// regions and content, publishing of new content versions, and insertion of
// content into page regions. Implementations of repositories (memory,
// Postgres, SQLite), lockers (in-process, Redis) and event sinks are provided
// under subpackages.
//
// Versioning
//
// A content version chain is the set of Content rows linked through
// OriginalID. The current version keeps its identity; every publish pushes an
// archived copy of the previous state into History. Placements (PageContent)
// always reference the current version.
//
// Placement ordering
//
// Sibling placements sharing (page, region, parent) carry unique, ascending
// Order values. The ordering service computes the next value inside the same
// unit of work as the insert, a Locker serialises concurrent inserts for the
// same key and repositories enforce uniqueness with a storage constraint.
package simplecms
