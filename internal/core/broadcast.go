package core

// recipients is a snapshot of the connections an event is addressed to.
type recipients []*Client

// broadcast sends an event to every recipient except skip. A full buffer means
// a slow consumer; the event is dropped for that client only. Returns the
// number of dropped deliveries.
func (rs recipients) broadcast(event *Event, skip *Client) int {
	dropped := 0
	for _, c := range rs {
		if c == skip {
			continue
		}
		if !deliver(c, event) {
			dropped++
		}
	}
	return dropped
}

func deliver(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}
