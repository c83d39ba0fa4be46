// Package control implements the HTTP control plane: three endpoints
// mediating every registry mutation — starting a scan, listing scan
// records, and requesting a stop. All bodies are JSON; error responses
// carry {error, details}.
package control
