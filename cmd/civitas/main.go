package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/config"
	"github.com/civitas-chicago/civitas/internal/ingest"
	"github.com/civitas-chicago/civitas/internal/logging"
	"github.com/civitas-chicago/civitas/internal/resolve"
	"github.com/civitas-chicago/civitas/internal/store"
	"github.com/civitas-chicago/civitas/internal/web"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "civitas",
		Short: "CIVITAS address standardization and entity resolution",
		Long:  `Ingests Chicago municipal datasets into a canonical location store and resolves addresses and PINs against it`,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(createIngestCmd())
	rootCmd.AddCommand(createResolveCmd())
	rootCmd.AddCommand(createBatchesCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createPingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore loads config, connects to Postgres and ensures the schema.
func openStore() (config.Config, *store.Postgres, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		st.Close()
		return config.Config{}, nil, err
	}
	return cfg, st, nil
}

func newPipeline(cfg config.Config, st store.Store) *ingest.Pipeline {
	log := logging.New(verbose)
	p := ingest.New(st, address.NewStandardizer(), ingest.NewSocrataClient(cfg.SocrataAppToken, log), log)
	if cfg.BatchSize > 0 {
		p.BatchSize = cfg.BatchSize
	}
	return p
}

func createIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load source datasets into the canonical store",
	}

	run := func(fn func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return fn(cmd.Context(), newPipeline(cfg, st), cfg)
		}
	}

	ingestCmd.AddCommand(&cobra.Command{
		Use:   "violations",
		Short: "Ingest building violations CSV",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.RunViolations(ctx, cfg.ViolationsCSV)
		}),
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "inspections",
		Short: "Ingest food inspections CSV",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.RunInspections(ctx, cfg.InspectionsCSV)
		}),
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "permits",
		Short: "Ingest building permits CSV",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.RunPermits(ctx, cfg.PermitsCSV)
		}),
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "311",
		Short: "Ingest 311 service requests CSV",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.Run311(ctx, cfg.Requests311CSV)
		}),
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "tax-liens",
		Short: "Ingest Cook County tax sales from Socrata",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.RunTaxLiens(ctx)
		}),
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "vacant-buildings",
		Short: "Ingest vacant building violations from Socrata",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.RunVacantBuildings(ctx)
		}),
	})
	ingestCmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Ingest every dataset",
		RunE: run(func(ctx context.Context, p *ingest.Pipeline, cfg config.Config) error {
			return p.RunAll(ctx, ingest.Sources{
				ViolationsCSV:  cfg.ViolationsCSV,
				InspectionsCSV: cfg.InspectionsCSV,
				PermitsCSV:     cfg.PermitsCSV,
				Requests311CSV: cfg.Requests311CSV,
			})
		}),
	})

	return ingestCmd
}

func createResolveCmd() *cobra.Command {
	var pin string
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "resolve [address]",
		Short: "Resolve an address or PIN to its canonical location",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var addr string
			if len(args) > 0 {
				addr = args[0]
			}
			if addr == "" && pin == "" {
				return fmt.Errorf("an address argument or --pin is required")
			}

			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := resolve.New(st, address.NewStandardizer(), cfg.GeoRadiusMeters).
				Resolve(cmd.Context(), resolve.Query{Address: addr, PIN: pin, Lat: lat, Lon: lon})
			if err != nil {
				return err
			}

			if !res.Resolved {
				fmt.Printf("No match (%s)\n", res.MatchConfidence)
				if res.Warning != "" {
					fmt.Println(res.Warning)
				}
				return nil
			}
			fmt.Printf("Matched via %s\n", res.MatchConfidence)
			fmt.Printf("  location_sk: %d\n", res.LocationSK)
			fmt.Printf("  address:     %s\n", res.FullAddress)
			if res.ParcelID != "" {
				fmt.Printf("  parcel:      %s\n", res.ParcelID)
			}
			if res.Lat != 0 || res.Lon != 0 {
				fmt.Printf("  point:       %.6f, %.6f\n", res.Lat, res.Lon)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "Cook County 14-digit PIN")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude for geospatial fallback")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude for geospatial fallback")
	return cmd
}

func createBatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List ingestion batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			batches, err := st.ListBatches(cmd.Context())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Dataset", "Status", "Rows", "Started", "Completed"})
			for _, b := range batches {
				completed := ""
				if !b.CompletedAt.IsZero() {
					completed = b.CompletedAt.Format(time.RFC3339)
				}
				table.Append([]string{
					fmt.Sprintf("%d", b.BatchID),
					b.SourceDataset,
					string(b.Status),
					fmt.Sprintf("%d", b.RowsLoaded),
					b.StartedAt.Format(time.RFC3339),
					completed,
				})
			}
			table.Render()
			return nil
		},
	}
}

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP resolution service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			log := logging.New(verbose)
			res := resolve.New(st, address.NewStandardizer(), cfg.GeoRadiusMeters)
			return web.NewServer(cfg.HTTPAddr, st, res, log).Start()
		},
	}
}

func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Println("Database connection successful!")
			return nil
		},
	}
}
