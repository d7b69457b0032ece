package events

// Container is the atomic unit of delivery from decoder to consumer: at most
// one packet per event type, absent when that type produced nothing since the
// previous commit. A container is never delivered empty.
type Container struct {
	Polarity *Packet[Polarity]
	Special  *Packet[Special]
	IMU6     *Packet[IMU6]
}

func (c *Container) Empty() bool {
	return (c.Polarity == nil || c.Polarity.Len() == 0) &&
		(c.Special == nil || c.Special.Len() == 0) &&
		(c.IMU6 == nil || c.IMU6.Len() == 0)
}

func (c *Container) EventCount() int {
	n := 0
	if c.Polarity != nil {
		n += c.Polarity.Len()
	}
	if c.Special != nil {
		n += c.Special.Len()
	}
	if c.IMU6 != nil {
		n += c.IMU6.Len()
	}
	return n
}
