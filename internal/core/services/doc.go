// Package services implements the driving ports on top of the driven ones.
// It owns the update-cycle, quota and freshness logic; storage, the upstream
// API and configuration are reached only through ports.
package services
