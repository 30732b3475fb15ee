package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"casaval/server/config"
	"casaval/server/internal/database"
	"casaval/server/internal/matching"
	"casaval/server/internal/models"
	"casaval/server/internal/spatial"
)

func main() {
	app := &cli.App{
		Name:  "compsearch",
		Usage: "Comparable property search against a local casaval database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the SQLite database file (defaults to DB_PATH)",
			},
			&cli.StringFlag{
				Name:  "zones",
				Usage: "Path to a JSON file overriding the built-in zone registry",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "search",
				Usage:  "Find comparables for a subject property",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reference",
						Usage: "Subject listing reference, excluded from the results",
					},
					&cli.Float64Flag{
						Name:  "lat",
						Usage: "Subject latitude",
					},
					&cli.Float64Flag{
						Name:  "lng",
						Usage: "Subject longitude",
					},
					&cli.StringFlag{
						Name:  "urbanization",
						Usage: "Subject urbanization name",
					},
					&cli.StringFlag{
						Name:  "suburb",
						Usage: "Subject suburb name",
					},
					&cli.StringFlag{
						Name:  "city",
						Usage: "Subject city name",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Property type (apartment, house, villa, penthouse, studio, townhouse, other)",
					},
					&cli.IntFlag{
						Name:  "bedrooms",
						Usage: "Subject bedroom count",
					},
					&cli.Float64Flag{
						Name:  "price",
						Usage: "Subject price in EUR",
					},
					&cli.Float64Flag{
						Name:  "area",
						Usage: "Subject build area in square meters",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Listing kind (sale, long_term_rental, short_term_rental)",
						Value: "sale",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of comparables to return",
						Value: models.DefaultResultLimit,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full search result as JSON",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print store totals and spatial index state",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the stats as JSON",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openStore opens the database named by --db (or DB_PATH) read-style: a
// missing file is an error instead of a silently created empty database.
func openStore(c *cli.Context) (*database.Database, *database.Store, *config.Config, *logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(c.String("log-level")); err == nil {
		logger.SetLevel(level)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dbPath := c.String("db")
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("database %s is not readable: %w", dbPath, err)
	}

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := database.NewStore(db, spatial.NewIndex())
	return db, store, cfg, logger, nil
}

// buildIndex does a one-shot spatial index build, enough for a single query.
func buildIndex(ctx context.Context, store *database.Store) error {
	points, err := store.ActiveCoordinatePoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to load coordinates: %w", err)
	}
	if err := store.Index().Rebuild(points); err != nil {
		return fmt.Errorf("failed to build spatial index: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	db, store, cfg, logger, err := openStore(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := buildIndex(ctx, store); err != nil {
		return err
	}

	criteria := &models.SearchCriteria{
		Reference:    c.String("reference"),
		Urbanization: c.String("urbanization"),
		Suburb:       c.String("suburb"),
		City:         c.String("city"),
		Bedrooms:     c.Int("bedrooms"),
		Price:        c.Float64("price"),
		BuildArea:    c.Float64("area"),
		Limit:        c.Int("limit"),
	}
	if c.IsSet("type") {
		criteria.PropertyType = models.NormalizePropertyType(c.String("type"))
	}
	if c.IsSet("lat") && c.IsSet("lng") {
		lat, lng := c.Float64("lat"), c.Float64("lng")
		criteria.Latitude = &lat
		criteria.Longitude = &lng
	}
	switch c.String("kind") {
	case "sale":
		criteria.ForSale = true
	case "long_term_rental":
		criteria.LongTermRental = true
	case "short_term_rental":
		criteria.ShortTermRental = true
	default:
		return fmt.Errorf("unknown listing kind %q", c.String("kind"))
	}

	zones := config.NewZoneRegistry()
	if path := c.String("zones"); path != "" {
		if err := zones.LoadFile(path); err != nil {
			return fmt.Errorf("failed to load zone overrides: %w", err)
		}
	}

	engine := matching.NewEngine(store, zones, matching.ParamsFromConfig(cfg), logger)
	result, err := engine.Search(ctx, criteria)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.Bool("json") {
		return printJSON(result)
	}
	printResult(result)
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	db, store, _, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := buildIndex(ctx, store); err != nil {
		return err
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	if c.Bool("json") {
		return printJSON(stats)
	}

	fmt.Printf("Total properties:   %d\n", stats.TotalProperties)
	fmt.Printf("Active properties:  %d\n", stats.ActiveProperties)
	fmt.Printf("With coordinates:   %d\n", stats.WithCoordinates)
	fmt.Printf("For sale:           %d\n", stats.ForSale)
	fmt.Printf("Long-term rentals:  %d\n", stats.LongTermRentals)
	fmt.Printf("Short-term rentals: %d\n", stats.ShortTermRentals)
	fmt.Printf("Index size:         %d\n", stats.IndexSize)
	if !stats.IndexBuiltAt.IsZero() {
		fmt.Printf("Index built at:     %s\n", stats.IndexBuiltAt.Format(time.RFC3339))
	}
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printResult(result *matching.SearchResult) {
	fmt.Printf("Search %s: %s, %s mode", result.SearchID, result.Outcome, result.Mode)
	if result.Degraded {
		fmt.Print(" (degraded)")
	}
	fmt.Printf(", %d attempt(s)\n", len(result.Attempts))

	if len(result.Comparables) == 0 {
		fmt.Println("No comparables found")
		return
	}

	for i, comp := range result.Comparables {
		p := comp.Property
		line := fmt.Sprintf("%2d. %-16s %-10s %d bed %7.0f m2  EUR %10.0f",
			i+1, p.Reference, p.PropertyType, p.Bedrooms, p.BuildArea, p.Price)
		if comp.DistanceMeters >= 0 {
			line += fmt.Sprintf("  %6.0f m", comp.DistanceMeters)
		}
		if comp.MatchLevel != "" {
			line += fmt.Sprintf("  [%s]", comp.MatchLevel)
		}
		fmt.Println(line)
	}
}
