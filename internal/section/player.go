package section

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtib/ableton-animator/internal/domain/timing"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Phase is the player's state.
type Phase int32

const (
	AwaitingCountIn Phase = iota
	Playing
)

func (p Phase) String() string {
	if p == Playing {
		return "playing"
	}
	return "awaiting_count_in"
}

// BarPlayer plays one bar of s starting at start.
type BarPlayer interface {
	PlayBar(ctx context.Context, start time.Time, s Section) error
}

// Listener is the input gate armed after each count-in.
type Listener interface {
	Arm(cycle string)
	Disarm()
}

// CountIn blocks until the count-in is complete.
type CountIn func(ctx context.Context) error

// Player advances the active section bar by bar.
type Player struct {
	state    *timing.State
	sections []Section
	bars     BarPlayer
	bar      time.Duration
	countIn  CountIn
	listener Listener
	stop     <-chan struct{}
	logger   logger.Logger

	phase  atomic.Int32
	active atomic.Int32
	played atomic.Uint64

	mu    sync.RWMutex
	cycle string
}

// NewPlayer creates a Player over sections.
func NewPlayer(
	state *timing.State,
	sections []Section,
	bars BarPlayer,
	bar time.Duration,
	countIn CountIn,
	listener Listener,
	opts ...Option,
) (*Player, error) {
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	p := &Player{
		state:    state,
		sections: sections,
		bars:     bars,
		bar:      bar,
		countIn:  countIn,
		listener: listener,
		logger:   logger.Get().Named("player"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run plays until ctx ends or a bar fails. Each cycle waits for the count-in,
// arms the listener and plays bars until the stop gesture is seen.
func (p *Player) Run(ctx context.Context) error {
	active := p.state.Section()
	if active < 0 || active >= len(p.sections) {
		active = 0
	}
	p.active.Store(int32(active))
	ignored := -1

	for {
		p.phase.Store(int32(AwaitingCountIn))
		p.logger.Info(ctx, "waiting for count-in")
		if err := p.countIn(ctx); err != nil {
			return err
		}
		metrics.RecordCountIn()

		cycle := uuid.NewString()
		p.setCycle(cycle)
		p.listener.Arm(cycle)
		p.phase.Store(int32(Playing))
		p.logger.Info(ctx, "listener armed", logger.String("cycle", cycle))

		next := time.Now()
		for {
			if idx := p.state.Section(); idx != active {
				switch {
				case idx >= 0 && idx < len(p.sections):
					active = idx
					p.active.Store(int32(active))
					metrics.RecordSectionChange()
					p.logger.Info(ctx, "now playing section",
						logger.Int("section", active+1),
						logger.String("name", p.sections[active].Name),
					)
				case idx != ignored:
					ignored = idx
					p.logger.Warn(ctx, "ignoring out of range section", logger.Int("section", idx+1))
				}
			}

			if err := p.bars.PlayBar(ctx, next, p.sections[active]); err != nil {
				p.listener.Disarm()
				return err
			}
			p.played.Add(1)
			metrics.RecordBarPlayed()
			next = next.Add(p.bar)

			if p.stopRequested() {
				p.listener.Disarm()
				p.logger.Info(ctx, "stop requested, listener detached", logger.String("cycle", cycle))
				break
			}
		}
	}
}

func (p *Player) stopRequested() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *Player) setCycle(id string) {
	p.mu.Lock()
	p.cycle = id
	p.mu.Unlock()
}

// Phase returns the current state.
func (p *Player) Phase() Phase { return Phase(p.phase.Load()) }

// Active returns the index of the section being played.
func (p *Player) Active() int { return int(p.active.Load()) }

// Cycle returns the id of the current armed cycle.
func (p *Player) Cycle() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cycle
}

// Stats returns player counters.
func (p *Player) Stats() map[string]interface{} {
	active := p.Active()
	return map[string]interface{}{
		"phase":          p.Phase().String(),
		"active_section": active + 1,
		"section_name":   p.sections[active].Name,
		"bars_played":    p.played.Load(),
		"cycle":          p.Cycle(),
	}
}
