package modelcache

// ProgressFunc receives download progress for an active load. total is -1
// when the size is not known up front.
type ProgressFunc func(loaded, total int64)

// flight tracks one URL between the first miss and the last waiter
// leaving. It outlives the fetch while waiters are still draining and
// outlives the waiters while an abandoned fetch is still running.
type flight struct {
	waiters  int
	fetching bool
	subs     map[*subscriber]struct{}
}

type subscriber struct {
	fn ProgressFunc
}

func (c *Cache) flightLocked(url string) *flight {
	fl, ok := c.flights[url]
	if !ok {
		fl = &flight{subs: make(map[*subscriber]struct{})}
		c.flights[url] = fl
	}
	return fl
}

func (c *Cache) joinLocked(url string, fn ProgressFunc) *subscriber {
	fl := c.flightLocked(url)
	fl.waiters++
	if fn == nil {
		return nil
	}
	s := &subscriber{fn: fn}
	fl.subs[s] = struct{}{}
	return s
}

func (c *Cache) leave(url string, s *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl, ok := c.flights[url]
	if !ok {
		return
	}
	fl.waiters--
	if s != nil {
		delete(fl.subs, s)
	}
	c.dropFlightLocked(url, fl)
}

func (c *Cache) dropFlightLocked(url string, fl *flight) {
	if fl.waiters <= 0 && !fl.fetching {
		delete(c.flights, url)
	}
}

// broadcast fans progress from the single download out to every caller
// currently waiting on url. Callbacks run outside the lock.
func (c *Cache) broadcast(url string, loaded, total int64) {
	c.mu.RLock()
	fl, ok := c.flights[url]
	if !ok {
		c.mu.RUnlock()
		return
	}
	fns := make([]ProgressFunc, 0, len(fl.subs))
	for s := range fl.subs {
		fns = append(fns, s.fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(loaded, total)
	}
}
