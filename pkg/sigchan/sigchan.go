package sigchan

// Chan is a non-blocking signal channel: it notifies that something happened
// without carrying data. Emitting into a full buffer drops the signal.
type Chan struct {
	c chan struct{}
}

func New(bufferSize int) *Chan {
	return &Chan{c: make(chan struct{}, bufferSize)}
}

func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C exposes the channel for select loops.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
