// Package integration holds end-to-end tests of whole deployment cycles
// against a local Maven repository, actuator and ntfy server.
package integration
