package eventsub

// dedupe remembers the last N notification message ids. Twitch delivers at least once,
// so a redelivery after reconnect carries an id seen before.
type dedupe struct {
	ids  []string
	next int
	seen map[string]struct{}
}

func newDedupe(window int) *dedupe {
	if window <= 0 {
		return nil
	}
	return &dedupe{
		ids:  make([]string, window),
		seen: make(map[string]struct{}, window),
	}
}

// Seen records id and reports whether it was already in the window.
// A nil dedupe and an empty id never match.
func (d *dedupe) Seen(id string) bool {
	if d == nil || id == "" {
		return false
	}
	if _, ok := d.seen[id]; ok {
		return true
	}

	if old := d.ids[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ids[d.next] = id
	d.seen[id] = struct{}{}
	d.next = (d.next + 1) % len(d.ids)
	return false
}
