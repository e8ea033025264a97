package coach

// Debouncer turns a noisy per-frame violation signal into a stable warning.
// The warning shows once more than window consecutive frames violate, and a single
// clean frame clears it.
type Debouncer struct {
	window int
	count  int
}

// NewDebouncer returns a debouncer with the given stability window.
func NewDebouncer(window int) *Debouncer {
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	return &Debouncer{window: window}
}

// Update feeds one frame and reports whether the warning is stable.
func (d *Debouncer) Update(violation bool) bool {
	if !violation {
		d.count = 0
		return false
	}
	// saturate so long violations cannot overflow
	if d.count <= d.window {
		d.count++
	}
	return d.count > d.window
}

// Count is the current run of consecutive violating frames.
func (d *Debouncer) Count() int { return d.count }

// Window is the configured stability window.
func (d *Debouncer) Window() int { return d.window }
