package querycache

// Recorder receives cache outcome events. Implementations must be safe for concurrent use.
type Recorder interface {
	Hit(driver string)
	Miss(driver string)
	Bypass()
	Flush(driver string, tagged bool)
}

type nopRecorder struct{}

func (nopRecorder) Hit(string)         {}
func (nopRecorder) Miss(string)        {}
func (nopRecorder) Bypass()            {}
func (nopRecorder) Flush(string, bool) {}
