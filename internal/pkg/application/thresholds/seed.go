package thresholds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/threshold-alerts/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/threshold-alerts/pkg/types"
)

type SeedConfig struct {
	Name     string   `yaml:"name"`
	MinValue *float64 `yaml:"minValue"`
	MaxValue *float64 `yaml:"maxValue"`
	Active   *bool    `yaml:"active"`
}

// Seed creates the configured thresholds that do not already exist by name.
// Deleted thresholds count as existing so that a deletion survives restarts.
func Seed(ctx context.Context, s database.Store, seeds []SeedConfig) error {
	logger := logging.GetFromContext(ctx)

	var errs []error

	for _, seed := range seeds {
		t := types.Threshold{
			Name:     strings.TrimSpace(seed.Name),
			MinValue: seed.MinValue,
			MaxValue: seed.MaxValue,
			IsActive: seed.Active == nil || *seed.Active,
		}

		if err := Validate(t); err != nil {
			errs = append(errs, fmt.Errorf("invalid seed threshold %q: %w", seed.Name, err))
			continue
		}

		_, err := s.GetThreshold(ctx, database.WithName(t.Name), database.WithDeleted())
		if err == nil {
			logger.Debug().Str("name", t.Name).Msg("threshold already exists, skipping seed")
			continue
		}
		if !errors.Is(err, types.ErrNotFound) {
			errs = append(errs, err)
			continue
		}

		created, err := s.AddThreshold(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		logger.Info().Uint("threshold_id", created.ID).Str("name", created.Name).Msg("seeded threshold")
	}

	return errors.Join(errs...)
}
