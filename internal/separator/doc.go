// Package separator drives the external stem separation tool. The CLI client
// speaks the tool's line-delimited JSON event protocol; the Driver stages
// inputs, streams progress into the catalog, and lands produced stems in the
// library.
package separator
