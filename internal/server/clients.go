package server

import (
	"voxelhost.ai/internal/entity"
	"voxelhost.ai/internal/protocol"
)

// Clients holds the live sessions keyed by their entity. Iteration follows
// connection order.
type Clients struct {
	order []entity.ID
	byID  map[entity.ID]*Client
}

func newClients() *Clients {
	return &Clients{byID: map[entity.ID]*Client{}}
}

func (cs *Clients) Len() int { return len(cs.byID) }

func (cs *Clients) Add(id entity.ID, c *Client) {
	if _, ok := cs.byID[id]; !ok {
		cs.order = append(cs.order, id)
	}
	cs.byID[id] = c
}

func (cs *Clients) Get(id entity.ID) (*Client, bool) {
	c, ok := cs.byID[id]
	return c, ok
}

func (cs *Clients) Remove(id entity.ID) (*Client, bool) {
	c, ok := cs.byID[id]
	if !ok {
		return nil, false
	}
	delete(cs.byID, id)
	for i, o := range cs.order {
		if o == id {
			cs.order = append(cs.order[:i], cs.order[i+1:]...)
			break
		}
	}
	return c, true
}

// RemoveIf calls fn for every client and removes those it returns true for.
// fn may notify clients but must not add or remove any.
func (cs *Clients) RemoveIf(fn func(entity.ID, *Client) bool) []*Client {
	var removed []*Client
	kept := cs.order[:0]
	for _, id := range cs.order {
		c := cs.byID[id]
		if fn(id, c) {
			delete(cs.byID, id)
			removed = append(removed, c)
			continue
		}
		kept = append(kept, id)
	}
	clear(cs.order[len(kept):])
	cs.order = kept
	return removed
}

func (cs *Clients) Each(fn func(entity.ID, *Client)) {
	for _, id := range cs.order {
		fn(id, cs.byID[id])
	}
}

func (cs *Clients) Notify(id entity.ID, m protocol.ServerMsg) {
	if c, ok := cs.byID[id]; ok {
		c.Notify(m)
	}
}

// NotifyRegistered sends m to every session past Connected.
func (cs *Clients) NotifyRegistered(m protocol.ServerMsg) {
	for _, id := range cs.order {
		if c := cs.byID[id]; c.state != protocol.Connected {
			c.Notify(m)
		}
	}
}

// NotifyInWorldIf sends m to in-world sessions that pass keep.
func (cs *Clients) NotifyInWorldIf(m protocol.ServerMsg, keep func(entity.ID) bool) {
	cs.NotifyInWorldIfExcept(0, m, keep)
}

// NotifyInWorldIfExcept is NotifyInWorldIf skipping the session owning except.
func (cs *Clients) NotifyInWorldIfExcept(except entity.ID, m protocol.ServerMsg, keep func(entity.ID) bool) {
	for _, id := range cs.order {
		c := cs.byID[id]
		if id == except || !c.state.InWorld() {
			continue
		}
		if keep == nil || keep(id) {
			c.Notify(m)
		}
	}
}
