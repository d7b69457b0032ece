package events

// Packet is an ordered, append-only buffer of one event type. It carries the
// overflow epoch valid at its allocation as its time base, so a consumer can
// widen the 31-bit per-event timestamps without extra context.
//
// A packet is owned by the decode goroutine until it moves into a Container;
// after that the consumer owns it exclusively.
type Packet[E any] struct {
	tsOverflow int32
	events     []E
}

func NewPacket[E any](capacity int, tsOverflow int32) *Packet[E] {
	if capacity < 1 {
		capacity = 1
	}
	return &Packet[E]{
		tsOverflow: tsOverflow,
		events:     make([]E, 0, capacity),
	}
}

func (p *Packet[E]) Append(e E) {
	p.events = append(p.events, e)
}

// Grow reserves room for at least n more events by doubling the current
// capacity, so a burst append cannot reallocate mid-burst.
func (p *Packet[E]) Grow(n int) {
	if len(p.events)+n <= cap(p.events) {
		return
	}
	newCap := cap(p.events) * 2
	for newCap < len(p.events)+n {
		newCap *= 2
	}
	grown := make([]E, len(p.events), newCap)
	copy(grown, p.events)
	p.events = grown
}

func (p *Packet[E]) Len() int {
	return len(p.events)
}

func (p *Packet[E]) Cap() int {
	return cap(p.events)
}

// TSOverflow is the overflow epoch forming the high bits of every event
// timestamp in this packet.
func (p *Packet[E]) TSOverflow() int32 {
	return p.tsOverflow
}

// Events exposes the underlying ordered slice. Callers must not append.
func (p *Packet[E]) Events() []E {
	return p.events
}
