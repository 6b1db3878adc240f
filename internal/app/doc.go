// Package app wires the boot engine's stores and services into a single
// application value with a managed lifecycle.
package app
