// Package scanner implements host observation for Spider.
//
// Scanners are pluggable collectors that observe one aspect of a host and
// emit loosely typed raw records. They never interpret what they see: the
// resolver owns validation, identity, and history merging.
//
// # Runners
//
// Scanners that shell out do so through a CommandRunner. LocalRunner uses
// os/exec on the machine spider runs on; SSHRunner runs the same commands
// on a remote host over a cached SSH connection. The docker, host, and
// process scanners are therefore identical for local and remote hosts.
//
// # Core Scanners
//
// DockerScanner lists containers (stopped ones included) via the docker CLI.
// HostScanner gathers hostname, kernel, uptime, and root disk usage.
// ProcessScanner lists running processes, de-duplicated by command line.
// FileScanner reads a configured set of files and extracts the absolute
// paths and imports they reference, plus the tail of log files.
// NetworkScanner discovers listening endpoints on the network with nmap.
//
// # Registry
//
// Registry holds the scanners per host and runs them in parallel with a
// per-host deadline. A failing scanner is logged and skipped; only a
// host-level timeout aborts the cycle, surfaced as a HostTimeoutError so
// the caller can fall back to the host's last known generation.
package scanner
