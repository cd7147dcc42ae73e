// Package service runs the group and membership pipelines: validate,
// authorize, apply through the repository, invalidate caches and emit audit
// events.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/cohortlabs/cohort-stack/common/errcode"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/membership/internal/cache"
	"github.com/cohortlabs/cohort-stack/membership/internal/metrics"
	"github.com/cohortlabs/cohort-stack/membership/internal/repository"
	"github.com/cohortlabs/cohort-stack/membership/internal/telemetry"
	"github.com/cohortlabs/cohort-stack/membership/internal/validator"
)

// invalidateTimeout bounds one background cache invalidation.
const invalidateTimeout = 5 * time.Second

// Config holds the collaborators shared by the pipelines. Cache may be nil
// when UserCacheEnabled is false.
type Config struct {
	Repository       repository.Repository
	Validators       *validator.Validators
	Emitter          *telemetry.Emitter
	Cache            cache.Store
	UserCacheEnabled bool
	Logger           *logging.Logger
}

// base carries what both services share.
type base struct {
	repo             repository.Repository
	validators       *validator.Validators
	emitter          *telemetry.Emitter
	cache            cache.Store
	userCacheEnabled bool
	logger           *logging.Logger
	wg               sync.WaitGroup
}

func newBase(cfg Config) *base {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &base{
		repo:             cfg.Repository,
		validators:       cfg.Validators,
		emitter:          cfg.Emitter,
		cache:            cfg.Cache,
		userCacheEnabled: cfg.UserCacheEnabled && cfg.Cache != nil,
		logger:           logger,
	}
}

// Wait blocks until background cache invalidations and audit deliveries
// started by this service have finished.
func (b *base) Wait() {
	b.wg.Wait()
	b.emitter.Wait()
}

// invalidate deletes keys in the background. Failures are logged only.
func (b *base) invalidate(ctx context.Context, keys []string) {
	if !b.userCacheEnabled || len(keys) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(bg, invalidateTimeout)
		defer cancel()
		if err := cache.Invalidate(ctx, b.cache, keys); err != nil {
			b.logger.WarnContext(ctx, "cache invalidation failed",
				logging.Count(len(keys)), logging.Error(err))
		}
	}()
}

// observe records the outcome of one pipeline run.
func observe(operation string, start time.Time, err error) {
	metrics.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	metrics.RequestsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	switch errcode.KindOf(err) {
	case errcode.KindNotAuthorized:
		return metrics.OutcomeDenied
	case errcode.KindDownstreamFailure:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeInvalid
	}
}

// decode maps a canonical payload onto a typed request. Single values are
// accepted where a list is expected.
func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
