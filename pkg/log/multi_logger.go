package log

// MultiLogger fans each event out to every sink in order, typically a
// console adapter plus a file recorder. The zero value logs nowhere
// and nil entries are skipped.
type MultiLogger []Logger

// Log delivers the event to every sink.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		if l != nil {
			l.Log(event)
		}
	}
}

// Compile-time interface satisfaction check.
var _ Logger = MultiLogger(nil)
