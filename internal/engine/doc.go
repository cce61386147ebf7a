// Package engine runs recognition jobs. It owns the serialized loop the
// coordinator lives on, dispatches jobs to recognition backends and fans job
// and quota events out to subscribers through a Broker.
package engine
