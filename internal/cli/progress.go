package cli

import (
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// progressLogger reports confirmed bytes as parts complete.
type progressLogger struct {
	log zerolog.Logger

	mu      sync.Mutex
	percent int
}

func newProgressLogger(log zerolog.Logger) *progressLogger {
	return &progressLogger{log: log, percent: -1}
}

func (p *progressLogger) Update(transferred, total int64) {
	percent := 100
	if total > 0 {
		percent = int(transferred * 100 / total)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if percent == p.percent {
		return
	}
	p.percent = percent

	p.log.Info().
		Str("transferred", humanize.IBytes(uint64(transferred))).
		Str("total", humanize.IBytes(uint64(total))).
		Int("percent", percent).
		Msg("progress")
}

func (p *progressLogger) Complete() {}

func (p *progressLogger) Error(error) {}
