package buffer

// Line holds at most one entry.
type Line[D, A any] struct {
	matcher Matcher[D, A]
	data    D
	valid   bool
}

// NewLine creates an empty line.
func NewLine[D, A any](matcher Matcher[D, A]) *Line[D, A] {
	return &Line[D, A]{matcher: matcher}
}

// IsValid reports whether the line is occupied.
func (l *Line[D, A]) IsValid() bool { return l.valid }

func (l *Line[D, A]) IsHit(addr A) (bool, error) {
	return l.valid && l.matcher.AreMatching(l.data, addr), nil
}

func (l *Line[D, A]) Data(addr A) (D, bool, error) {
	var zero D
	if hit, _ := l.IsHit(addr); !hit {
		return zero, false, nil
	}
	return l.data, true, nil
}

// SetData replaces the entry and returns the previous one.
func (l *Line[D, A]) SetData(_ A, data D) (D, bool, error) {
	old, had := l.data, l.valid
	l.data = data
	l.valid = true
	if !had {
		var zero D
		return zero, false, nil
	}
	return old, true, nil
}

// Invalidate empties the line.
func (l *Line[D, A]) Invalidate() {
	var zero D
	l.data = zero
	l.valid = false
}
