// Package knowledge implements hybrid retrieval over a veterinary
// reference corpus stored in PostgreSQL + pgvector.
//
// # Overview
//
// Two complementary strategies answer a query:
//
//   - Engine: semantic ANN search over flat, pre-embedded text chunks
//   - Navigator: a model-guided walk of document outline trees, built
//     for material that lives in tables, annexes, and dosage protocols
//     where flat similarity search performs poorly
//
// Router picks between them when the caller asks for auto mode, using
// a configurable vocabulary of structural trigger terms.
//
// # Facade
//
// Service is the single entry point. Every caller (the agent, the MCP
// server, the REST API) goes through it:
//
//	Query
//	  |
//	  v
//	Router.Resolve (vector | structural | hybrid)
//	  |
//	  v
//	cache lookup (fingerprint of mode + normalized query)
//	  |           on miss, single-flight
//	  v
//	Engine.Search / Navigator.Navigate
//	  |
//	  v
//	QueryResult (stored on success, failures never cached)
//
// Failures are part of the result, not Go errors: QueryResult.Success
// is false and FailureKind carries the class (provider_unavailable,
// store_unavailable, navigation_exhausted, invalid_mode, empty_corpus).
//
// # Store
//
// Store is the pgx-backed reader for both strategies. Chunk search uses
// the pgvector cosine operator over an HNSW index and raises
// hnsw.ef_search per transaction so recall is tunable at runtime.
package knowledge
