package app

import (
	"chat_sync_service/pkg/logger"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSpec cron spec of the stale pending sweep
const DefaultSweepSpec = "@every 30s"

// StaleSweeper runs Session.SweepStale on a cron schedule
type StaleSweeper struct {
	engine  *cron.Cron
	session *Session
}

// NewStaleSweeper create StaleSweeper, spec accepts standard cron expressions and @every descriptors
func NewStaleSweeper(session *Session, spec string) (*StaleSweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	s := &StaleSweeper{
		engine:  cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		session: session,
	}
	if _, err := s.engine.AddFunc(spec, s.Run); err != nil {
		return nil, errors.Wrapf(err, "invalid sweep spec %q", spec)
	}
	return s, nil
}

// Run one sweep
func (s *StaleSweeper) Run() {
	if n := s.session.SweepStale(); n > 0 {
		logger.Log.Info("stale pending messages failed", zap.Int("count", n))
	}
}

// Start begin the schedule
func (s *StaleSweeper) Start() {
	logger.Log.Info("stale sweeper start")
	s.engine.Start()
}

// Stop end the schedule and wait for a running sweep
func (s *StaleSweeper) Stop() {
	<-s.engine.Stop().Done()
	logger.Log.Info("stale sweeper stop")
}
