// Package pool provides memory management optimizations.
//
// Chunk payloads are large (hundreds of MiB by default) and short-lived, so
// the chunker recycles their backing arrays instead of allocating one per part.
package pool
