package babel

import "time"

// maxWakeup is the ceiling on the wakeup interval check_neighbours
// returns, grounded on
// neighbour.c's check_neighbours (msecs = 50000).
const maxWakeup = 50000 * time.Millisecond

// Tick runs the maintenance sweep: it ages every neighbour's hello
// histories and txcost, flushes neighbours that have gone silent,
// expires sources, expires stale routes, re-runs selection on every
// affected destination, and returns the caller's next desired wakeup
// interval.
func (c *Core) Tick(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	wakeup := maxWakeup

	for _, n := range c.neighbours.all() {
		changed := n.updateMulticast(now, -1, 0)
		rc := n.updateUnicast(now, -1, 0)
		changed = changed || rc

		if n.hello.reach == 0 || n.hello.time.After(now) || msSince(now, n.hello.time) > 300000 {
			c.flushNeighbour(n, now)
			continue
		}

		rc = n.resetTxcost(now)
		changed = changed || rc

		if changed {
			c.notifyNeighbourChanged(n)
			c.reselectNeighbourDests(n, now)
		}

		if n.hello.interval > 0 {
			wakeup = minDuration(wakeup, time.Duration(n.hello.interval*10)*time.Millisecond)
		}
		if n.uhello.interval > 0 {
			wakeup = minDuration(wakeup, time.Duration(n.uhello.interval*10)*time.Millisecond)
		}
		if n.ihuInterval > 0 {
			wakeup = minDuration(wakeup, time.Duration(n.ihuInterval*10)*time.Millisecond)
		}
	}

	c.expireSourcesAndRoutes(now)

	return wakeup
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
