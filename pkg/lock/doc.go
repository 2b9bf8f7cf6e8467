// Package lock serializes balance mutations per account across independent
// service processes. A shared backend (Redis in production, in-memory for
// tests) grants leased, token-guarded keys; the Coordinator derives account
// keys, bounds how long callers queue, and maps contention apart from
// backend outages.
package lock
