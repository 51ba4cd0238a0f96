package recap

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"recaps/internal/types"
)

// piecesPerKilogram converts a piece count into an approximate weight.
const piecesPerKilogram = 400

// StatsSource is the query contract behind StatsComputer.
type StatsSource interface {
	GlobalStats(ctx context.Context, start, end time.Time) (*types.GlobalStats, error)
	GlobalMediaCount(ctx context.Context, start, end time.Time) (int64, error)
	UserProfile(ctx context.Context, userID int64) (*types.UserProfile, error)
	UserStats(ctx context.Context, userID int64, start, end time.Time) (*types.UserStats, error)
}

// StatsComputer assembles RecapDocuments from the statistics store. Global
// totals are loaded once per page; user figures are computed in the user's
// own time zone.
type StatsComputer struct {
	Source StatsSource
}

// NewStatsComputer returns a computer reading from source.
func NewStatsComputer(source StatsSource) *StatsComputer {
	return &StatsComputer{Source: source}
}

// LoadPeriod fetches platform totals for the period concurrently.
func (c *StatsComputer) LoadPeriod(ctx context.Context, p types.Period) (*PeriodContext, error) {
	var (
		globals *types.GlobalStats
		media   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		globals, err = c.Source.GlobalStats(gctx, p.Start, p.End)
		return err
	})
	g.Go(func() error {
		var err error
		media, err = c.Source.GlobalMediaCount(gctx, p.Start, p.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	globals.TotalMedia = media
	return &PeriodContext{Period: p, Globals: *globals}, nil
}

// Compute builds one member's recap.
func (c *StatsComputer) Compute(ctx context.Context, m types.AudienceMember, pc *PeriodContext) (*types.RecapDocument, error) {
	profile, err := c.Source.UserProfile(ctx, m.UserID)
	if err != nil {
		return nil, err
	}
	start, end := pc.Period.InZone(profile.TimeZone)
	stats, err := c.Source.UserStats(ctx, m.UserID, start, end)
	if err != nil {
		return nil, err
	}

	var weight *float64
	if stats.PieceCount > 0 {
		w := float64(stats.PieceCount) / piecesPerKilogram
		weight = &w
	}

	return &types.RecapDocument{
		ReportDate: pc.Period.Start.Format(time.DateOnly),
		User:       *profile,
		Dates:      types.RecapDates{Start: start, End: end},
		Stories: types.RecapStories{
			Global: types.GlobalStory{
				TotalPiecesBuilt: pc.Globals.TotalPieces,
				TotalSetsBuilt:   pc.Globals.TotalSets,
				UserPercentile:   percentile(stats.PieceCount, pc.Globals.TotalPieces),
			},
			Sets: types.SetsStory{
				TotalSetsAdded:  stats.SetsAdded,
				TotalSetsBuilt:  stats.SetsBuilt,
				TotalPieceCount: stats.PieceCount,
				TotalWeight:     weight,
			},
			Minifigs: types.MinifigsStory{
				TotalMinifigsAdded: stats.MinifigsAdded,
				TotalQuantity:      stats.MinifigQuantity,
			},
			Collections: types.CollectionStory{
				TotalCollectionsCreated: stats.CollectionsCreated,
				CollectionTypes:         nonNil(stats.CollectionTypes),
			},
			Wishlist: types.WishlistStory{TotalAdded: stats.WishlistAdded},
			Media: types.MediaStory{
				GlobalTotalMediaUploaded: pc.Globals.TotalMedia,
				TotalMedia:               stats.MediaUploaded,
			},
			Themes: types.ThemesStory{
				TotalThemes: stats.TotalThemes,
				TopThemes:   nonNil(stats.TopThemes),
			},
		},
	}, nil
}

// percentile is the user's share of all pieces built, in percent with two
// decimals.
func percentile(user, global int64) float64 {
	if global <= 0 {
		return 0
	}
	return math.Round(float64(user)/float64(global)*100*100) / 100
}

func nonNil(in []types.NamedCount) []types.NamedCount {
	if in == nil {
		return []types.NamedCount{}
	}
	return in
}
