/*
Package session orchestrates concurrent access to conversation sessions.

It serialises runs of the same session inside one process with
reference-counted mutexes, optionally extends that across replicas with a
ports.DistributedLocker, and implements find-or-create on top of the store's
one-live-session-per-address guarantee.
*/
package session
