// Package domain holds the collector's entities and the rules that need no I/O:
// survey registries and code validation, year ranges and request windows,
// observation periods and their ordering, update cycles, quota entries,
// per-series status, sentinels and the freshness aggregate, scheduler tasks,
// settings validation and the error values shared across layers.
//
// It imports only the standard library; every other package builds on it.
package domain
