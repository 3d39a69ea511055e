package avatar

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

type keepAlive struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// halt stops the loop and waits for it to exit.
func (k *keepAlive) halt() {
	if k == nil {
		return
	}
	k.once.Do(func() { close(k.stop) })
	<-k.done
}

// startKeepAlive pings dc every pingInterval until the channel leaves the
// open state, a send fails or the loop is stopped. At most one loop runs.
func (c *Client) startKeepAlive(dc DataChannel) {
	k := &keepAlive{stop: make(chan struct{}), done: make(chan struct{})}

	c.mu.Lock()
	prev := c.keepAlive
	c.keepAlive = k
	c.mu.Unlock()
	prev.halt()

	t := c.newTicker(c.pingInterval)
	go func() {
		defer close(k.done)
		defer t.Stop()

		for {
			select {
			case <-k.stop:
				return
			case <-t.C():
			}

			if state := dc.ReadyState(); state != webrtc.DataChannelStateOpen {
				log.Warn().Str("module", "avatar").Stringer("state", state).Msg("keep-alive stopped, data channel not open")
				return
			}
			ping := fmt.Sprintf("ping %d", c.now().UnixMilli())
			if err := dc.SendText(ping); err != nil {
				log.Warn().Str("module", "avatar").Err(err).Msg("keep-alive send failed")
				return
			}
			log.Trace().Str("module", "avatar").Str("ping", ping).Msg("keep-alive")
		}
	}()
}

func (c *Client) stopKeepAlive() {
	c.mu.Lock()
	k := c.keepAlive
	c.keepAlive = nil
	c.mu.Unlock()
	k.halt()
}
