package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cohere-llc/geoquery/pkg/feature"
	"github.com/cohere-llc/geoquery/pkg/source"
)

var (
	verbose     bool
	catalogPath string
	lonField    string
	latField    string

	pgHost     string
	pgPort     int
	pgUser     string
	pgPassword string
	pgDB       string
)

var rootCmd = &cobra.Command{
	Use:   "geoquery",
	Short: "Declarative spatial queries over feature collections",
	Long: `Build lazily-evaluated pipelines of filters and spatial joins over
feature collections loaded from CSV, GeoJSON, PostGIS or remote services.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

var fieldsCmd = &cobra.Command{
	Use:   "fields <source>",
	Short: "List queryable property keys of a collection",
	Args:  cobra.ExactArgs(1),
	Run:   runFields,
}

var filterCmd = &cobra.Command{
	Use:   "filter <source>",
	Short: "Filter a collection and emit the result as GeoJSON",
	Args:  cobra.ExactArgs(1),
	Run:   runFilter,
}

var joinCmd = &cobra.Command{
	Use:   "join <left> <right>",
	Short: "Join two collections on within-distance matching",
	Long: `Build a deferred within-distance join of two collections and
materialize it. With --best each candidate keeps only its closest match.`,
	Args: cobra.ExactArgs(2),
	Run:  runJoin,
}

var pgloadCmd = &cobra.Command{
	Use:   "pgload <csv>",
	Short: "Import a CSV file into the PostGIS feature store",
	Args:  cobra.ExactArgs(1),
	Run:   runPgload,
}

var (
	fieldPattern   string
	equalsFlags    []string
	dateRangeFlags []string

	joinDistance  float64
	joinBest      bool
	joinMatchKey  string
	joinDistKey   string
	joinLeftField string
	joinRightFld  string

	pgInitSchema   bool
	pgSpatialIndex bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "services.yaml", "Service catalog file")
	rootCmd.PersistentFlags().StringVar(&lonField, "lon", "lon", "CSV field holding the longitude")
	rootCmd.PersistentFlags().StringVar(&latField, "lat", "lat", "CSV field holding the latitude")
	rootCmd.PersistentFlags().StringVar(&pgHost, "pg-host", "localhost", "PostGIS host")
	rootCmd.PersistentFlags().IntVar(&pgPort, "pg-port", 5432, "PostGIS port")
	rootCmd.PersistentFlags().StringVar(&pgUser, "pg-user", "postgres", "PostGIS user")
	rootCmd.PersistentFlags().StringVar(&pgPassword, "pg-password", "postgres", "PostGIS password")
	rootCmd.PersistentFlags().StringVar(&pgDB, "pg-db", "geodb", "PostGIS database")

	fieldsCmd.Flags().StringVarP(&fieldPattern, "pattern", "p", "", "Regular expression to match keys against")

	for _, cmd := range []*cobra.Command{filterCmd, joinCmd} {
		cmd.Flags().StringArrayVar(&equalsFlags, "equals", nil, "Equality filter as field=value (repeatable)")
		cmd.Flags().StringArrayVar(&dateRangeFlags, "date-range", nil, "Date filter as field,start,end (repeatable)")
	}

	joinCmd.Flags().Float64VarP(&joinDistance, "distance", "d", 1000, "Match distance in meters")
	joinCmd.Flags().BoolVarP(&joinBest, "best", "b", false, "Keep only the closest match per feature")
	joinCmd.Flags().StringVar(&joinMatchKey, "match-key", "", "Property name for the recorded match")
	joinCmd.Flags().StringVar(&joinDistKey, "distance-key", "", "Property name for the recorded distance")
	joinCmd.Flags().StringVar(&joinLeftField, "left-field", "location", "Coordinate-bearing field of the left side")
	joinCmd.Flags().StringVar(&joinRightFld, "right-field", "location", "Coordinate-bearing field of the right side")

	pgloadCmd.Flags().BoolVar(&pgInitSchema, "init-schema", false, "Recreate the features table before loading")
	pgloadCmd.Flags().BoolVar(&pgSpatialIndex, "spatial-index", false, "Create a GIST index after loading")

	rootCmd.AddCommand(fieldsCmd, filterCmd, joinCmd, pgloadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runFields(cmd *cobra.Command, args []string) {
	fc, err := resolveCollection(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load collection")
	}

	keys, err := fc.Properties(fieldPattern)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list properties")
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		fmt.Println(key)
	}
}

func runFilter(cmd *cobra.Command, args []string) {
	fc, err := resolveCollection(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load collection")
	}

	filters, err := outerFilters()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid filter")
	}

	emit(fc.Filter(filters...))
}

func runJoin(cmd *cobra.Command, args []string) {
	left, err := resolveCollection(args[0])
	if err != nil {
		log.Fatal().Err(err).Str("source", args[0]).Msg("Failed to load left collection")
	}
	right, err := resolveCollection(args[1])
	if err != nil {
		log.Fatal().Err(err).Str("source", args[1]).Msg("Failed to load right collection")
	}

	filters, err := outerFilters()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid filter")
	}

	within := feature.WithinDistance(joinLeftField, joinRightFld, joinDistance)

	join := feature.Matches(joinMatchKey, joinDistKey)
	if joinBest {
		join = feature.SaveBest(joinMatchKey, joinDistKey)
	}

	emit(join.Apply(left, right, within).Filter(filters...))
}

func runPgload(cmd *cobra.Command, args []string) {
	fc, err := source.FromCSV(args[0], feature.ToPoint(lonField, latField))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read csv")
	}

	pg, err := source.OpenPostGIS(pgHost, pgUser, pgPassword, pgDB, pgPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostGIS")
	}
	defer pg.Close()

	if pgInitSchema {
		if err := pg.InitSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to init schema")
		}
	}

	start := time.Now()
	feats := fc.Features()
	if err := pg.BulkInsertFeatures(feats); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert features")
	}

	if pgSpatialIndex {
		if err := pg.CreateSpatialIndex(); err != nil {
			log.Fatal().Err(err).Msg("Failed to create spatial index")
		}
	}

	count, err := pg.Count()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count features")
	}
	fmt.Printf("Loaded %d features in %v (%d in store)\n", len(feats), time.Since(start), count)
}

// resolveCollection picks an adapter from the argument's shape: *.csv and
// *.geojson files, a pg: prefix for the PostGIS store, or a
// SERVICE/PRODUCT/VARIANT path resolved through the catalog.
func resolveCollection(arg string) (feature.FeatureCollection, error) {
	switch {
	case strings.HasPrefix(arg, "pg:"):
		pg, err := source.OpenPostGIS(pgHost, pgUser, pgPassword, pgDB, pgPort)
		if err != nil {
			return feature.FeatureCollection{}, err
		}
		defer pg.Close()
		return pg.Collection(nil)
	case strings.Contains(arg, "/") && !strings.Contains(arg, "."):
		cat, err := source.LoadCatalog(catalogPath)
		if err != nil {
			return feature.FeatureCollection{}, fmt.Errorf("failed to load catalog: %w", err)
		}
		client := &http.Client{Timeout: 30 * time.Second}
		return source.FromService(client, cat, arg)
	default:
		switch filepath.Ext(arg) {
		case ".csv":
			return source.FromCSV(arg, feature.ToPoint(lonField, latField))
		case ".json", ".geojson":
			return source.ReadGeoJSON(arg)
		}
		return feature.FeatureCollection{}, fmt.Errorf("cannot tell what kind of source %q is", arg)
	}
}

// outerFilters builds predicate filters from the repeatable flag values.
func outerFilters() ([]feature.Filter, error) {
	var filters []feature.Filter
	for _, raw := range equalsFlags {
		field, value, ok := strings.Cut(raw, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("--equals wants field=value, got %q", raw)
		}
		filters = append(filters, feature.Equals(field, value))
	}
	for _, raw := range dateRangeFlags {
		parts := strings.Split(raw, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("--date-range wants field,start,end, got %q", raw)
		}
		filters = append(filters, feature.DateRange(parts[0], parts[1], parts[2]))
	}
	return filters, nil
}

// emit materializes the pipeline and prints the result as GeoJSON.
func emit(fc feature.FeatureCollection) {
	start := time.Now()
	computed, err := fc.Compute()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute collection")
	}
	log.Debug().
		Int("features", len(computed.Features())).
		Dur("duration", time.Since(start)).
		Msg("Computed collection")

	data, err := json.MarshalIndent(computed, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(data))
}
