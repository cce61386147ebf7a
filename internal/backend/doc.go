// Package backend defines the interface recognition backends implement and
// the registry the engine resolves them from by model name.
package backend
