package section

import "github.com/tomtib/ableton-animator/pkg/logger"

// Option configures a Player.
type Option func(*Player)

// WithStop sets the stop gesture polled after every bar.
func WithStop(stop <-chan struct{}) Option {
	return func(p *Player) { p.stop = stop }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.logger = l
		}
	}
}
