package ws

// Reasons sent with countdown_stopped
const (
	StopReasonFaceLost = "face_lost"
)

// countdown drives the server side auto-capture timer of one session. It is
// owned by the client's write loop.
type countdown struct {
	readyFrames int
	duration    int

	streak    int
	active    bool
	remaining int
}

func newCountdown(readyFrames, duration int) *countdown {
	if readyFrames < 1 {
		readyFrames = 1
	}
	if duration < 1 {
		duration = 1
	}
	return &countdown{readyFrames: readyFrames, duration: duration}
}

// observe records one verdict and returns the events to emit
func (c *countdown) observe(ready bool) [][]byte {
	if !ready {
		c.streak = 0
		if c.active {
			c.active = false
			return [][]byte{newCountdownStopped(StopReasonFaceLost)}
		}
		return nil
	}

	c.streak++
	if c.active || c.streak < c.readyFrames {
		return nil
	}

	c.active = true
	c.remaining = c.duration
	return [][]byte{newCountdownStarted(c.duration)}
}

// tick advances an active countdown by one second
func (c *countdown) tick() [][]byte {
	if !c.active {
		return nil
	}

	c.remaining--
	events := [][]byte{newCountdownTick(c.remaining)}
	if c.remaining <= 0 {
		c.active = false
		c.streak = 0
		events = append(events, newCaptureCommand())
	}
	return events
}

func (c *countdown) running() bool {
	return c.active
}
