package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Service runs the block and validator loops on their own tickers until
// Close is called. Either indexer may be nil.
type Service struct {
	blocks     *BlockIndexer
	validators *ValidatorIndexer
	ctx        context.Context
	cancel     context.CancelFunc

	wg sync.WaitGroup

	sync.Mutex
	started bool
}

func NewService(
	ctx context.Context,
	blocks *BlockIndexer,
	validators *ValidatorIndexer,
) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{blocks: blocks, validators: validators, ctx: ctx, cancel: cancel}
}

// Start launches the loops, calling it more than once has no effect
func (s *Service) Start(blockInterval, validatorInterval time.Duration) {
	s.Lock()
	defer s.Unlock()
	if s.started {
		return
	}
	s.started = true
	if s.blocks != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Info().Dur("interval", blockInterval).Msg("starting block indexer")
			s.blocks.Start(s.ctx, blockInterval)
		}()
	}
	if s.validators != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Info().Dur("interval", validatorInterval).Msg("starting validator indexer")
			s.validators.Start(s.ctx, validatorInterval)
		}()
	}
}

// Done is closed once Close was called or the parent context ended
func (s *Service) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Service) Close() {
	s.cancel()
	// wait for shutdown to complete
	s.wg.Wait()
}
