// Package setup prepares a host for virtmcp. It writes the configuration
// file and creates everything the file points at.
//
// Setup runs before any command has a logger of its own, so it is the one
// package that logs through a package-level logger.
package setup
