package relay

// MaxMembers is how many clients a room holds: one host and one controller.
const MaxMembers = 2

// Room is a named meeting point for two peers. Clients pick the name.
type Room struct {
	ID      string
	Members []*Client
}

func (r *Room) has(c *Client) bool {
	for _, m := range r.Members {
		if m == c {
			return true
		}
	}
	return false
}

func (r *Room) full() bool { return len(r.Members) >= MaxMembers }

func (r *Room) remove(c *Client) {
	for i, m := range r.Members {
		if m == c {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return
		}
	}
}

// other returns the member that is not c, if any.
func (r *Room) other(c *Client) *Client {
	for _, m := range r.Members {
		if m != c {
			return m
		}
	}
	return nil
}
