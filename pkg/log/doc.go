// Package log captures structured bridge events: wire traffic, session
// state changes, and errors at every layer.
//
// Applications choose where events go by implementing Logger or by
// composing the provided implementations: SlogAdapter for console
// output during development, FileLogger for compact CBOR event
// recordings that Reader can replay and filter offline, MultiLogger
// to fan out to several sinks, and NoopLogger to disable logging.
package log
