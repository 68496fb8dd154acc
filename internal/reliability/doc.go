// Package reliability holds caller-side retry helpers for dispatch operations.
package reliability
