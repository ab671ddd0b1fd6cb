package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"genescore/adapters/genesets"
	"genescore/adapters/matrixio"
	"genescore/adapters/postgres"
	"genescore/adapters/rng"
	"genescore/app"
	"genescore/domain/scoring"
	"genescore/internal"
	"genescore/internal/config"
	"genescore/internal/fileutil"
	"genescore/internal/migration"
	"genescore/internal/report"
	"genescore/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "genescore",
		Short:        "Score gene sets in single-cell expression matrices",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newScoreCmd(),
		newRunsCmd(),
		newReportCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// scoreFlags mirrors the score command line
type scoreFlags struct {
	matrix        string
	geneSets      string
	cellFilter    string
	geneSetFilter string
	out           string
	format        string
	paramsFile    string
	reportPath    string
	databaseURL   string
	progress      bool

	method        string
	nperm         int
	neighbors     int
	neighborsMode string
	dropThreshold float64
	dropFrequency int
	seed          uint64
	workers       int
	noSmooth      bool
	globalFDR     bool
}

func newScoreCmd() *cobra.Command {
	var f scoreFlags
	defaults := config.LoadScoringParams()

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score each cell for each gene set and estimate significance",
		Long: `Score each cell for each gene set and estimate significance by permuting
background genes matched on mean and/or variance.

Example: genescore score --matrix matrix.mtx --gene_sets sets.gmt --nperm 10000 --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := resolveParams(cmd, &f, defaults)
			if err != nil {
				return err
			}
			return runScore(cmd.Context(), &f, params)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.matrix, "matrix", "", "Gene expression matrix (txt, csv, gct, mtx or xlsx) with cells on rows")
	fl.StringVar(&f.geneSets, "gene_sets", "", "Gene sets in gmx, gmt or grp format")
	fl.StringVar(&f.cellFilter, "cell_filter", "", "File with one cell id per line, or a regular expression over cell ids")
	fl.StringVar(&f.geneSetFilter, "gene_set_filter", "", "File with one gene set name per line, or comma separated names")
	fl.StringVar(&f.out, "out", "", "Output file name prefix (default <matrix>_gene_set_scores)")
	fl.StringVar(&f.format, "format", matrixio.FormatTXT, "Output file format: "+strings.Join(matrixio.Formats, ", "))
	fl.StringVar(&f.paramsFile, "params", "", "YAML file with scoring parameters; flags given explicitly win")
	fl.StringVar(&f.reportPath, "report", "", "Write a run report; .html renders HTML, anything else markdown")
	fl.StringVar(&f.databaseURL, "database-url", "", "Store the run in postgres (default $DATABASE_URL)")
	fl.BoolVar(&f.progress, "progress", false, "Log each gene set as it finishes")

	fl.StringVar(&f.method, "method", string(defaults.Method), "Scoring method: mean, mean_z_score or mean_rank")
	fl.IntVar(&f.nperm, "nperm", defaults.Permutations, "Number of permutations; 0 computes scores only")
	fl.IntVar(&f.neighbors, "n_neighbors", defaults.Neighbors, "Number of neighbours per set gene for background sampling")
	fl.StringVar(&f.neighborsMode, "neighbors_method", string(defaults.NeighborMode), "Background matching: mean, variance, mean_variance or none")
	fl.Float64Var(&f.dropThreshold, "drop_p_value_threshold", defaults.DropThreshold, "Stop permuting cells whose p-value lower bound reaches this")
	fl.IntVar(&f.dropFrequency, "drop_frequency", defaults.DropFrequency, "Permutations between early stopping checks; 0 disables")
	fl.Uint64Var(&f.seed, "seed", defaults.Seed, "Random number generator seed")
	fl.IntVar(&f.workers, "workers", defaults.Workers, "Worker goroutines; 0 uses all CPUs")
	fl.BoolVar(&f.noSmooth, "no_smooth", !defaults.Smooth, "Report k/n instead of the smoothed (k+1)/(n+2)")
	fl.BoolVar(&f.globalFDR, "global_fdr", defaults.GlobalFDR, "Also compute FDR across all sets")

	_ = cmd.MarkFlagRequired("matrix")
	_ = cmd.MarkFlagRequired("gene_sets")
	return cmd
}

// resolveParams layers defaults from the environment, then the YAML file,
// then flags set on the command line
func resolveParams(cmd *cobra.Command, f *scoreFlags, defaults scoring.Params) (scoring.Params, error) {
	params := defaults
	if f.paramsFile != "" {
		var err error
		if params, err = config.LoadParamsFile(f.paramsFile, params); err != nil {
			return params, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("method") {
		params.Method = scoring.Method(f.method)
	}
	if changed("nperm") {
		params.Permutations = f.nperm
	}
	if changed("n_neighbors") {
		params.Neighbors = f.neighbors
	}
	if changed("neighbors_method") {
		params.NeighborMode = scoring.NeighborMode(f.neighborsMode)
	}
	if changed("drop_p_value_threshold") {
		params.DropThreshold = f.dropThreshold
	}
	if changed("drop_frequency") {
		params.DropFrequency = f.dropFrequency
	}
	if changed("seed") {
		params.Seed = f.seed
	}
	if changed("workers") {
		params.Workers = f.workers
	}
	if changed("no_smooth") {
		params.Smooth = !f.noSmooth
	}
	if changed("global_fdr") {
		params.GlobalFDR = f.globalFDR
	}
	// --nperm 0 alone means scores only
	if changed("nperm") && f.nperm == 0 && !changed("drop_frequency") {
		params.DropFrequency = 0
	}
	return params, params.Validate()
}

func runScore(ctx context.Context, f *scoreFlags, params scoring.Params) error {
	logger := internal.NewDefaultLogger()

	writer, err := matrixio.NewWriter(f.format, logger)
	if err != nil {
		return err
	}
	out := f.out
	if out == "" {
		base, _ := fileutil.SplitExt(f.matrix)
		out = base + "_gene_set_scores"
	}

	opts := []app.ServiceOption{app.WithLogger(logger)}
	repo, closeDB, err := openRepository(ctx, f.databaseURL, logger)
	if err != nil {
		return err
	}
	defer closeDB()
	if repo != nil {
		opts = append(opts, app.WithRepository(repo))
	}

	svc := app.NewScoreService(rng.NewPCGAdapter(), matrixio.NewReader(logger), genesets.NewReader(logger), opts...)
	outcome, err := svc.Run(ctx, app.ScoreRequest{
		MatrixPath:    f.matrix,
		GeneSetsPath:  f.geneSets,
		CellFilter:    f.cellFilter,
		GeneSetFilter: f.geneSetFilter,
		Params:        params,
		OutPrefix:     out,
		Writer:        writer,
		ReportPath:    f.reportPath,
		Progress:      f.progress,
	})
	if err != nil {
		return err
	}

	for _, failure := range outcome.Run.Result.Failures {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", failure.Name, failure.Error)
	}
	for _, path := range outcome.Files {
		fmt.Println(path)
	}
	if repo != nil {
		fmt.Fprintf(os.Stderr, "stored run %s\n", outcome.Run.ID)
	}
	return nil
}

// openRepository connects to postgres when a URL is configured and makes
// sure the schema exists. With no URL it returns a nil repository.
func openRepository(ctx context.Context, url string, logger *internal.Logger) (ports.ScoreRepository, func(), error) {
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return nil, func() {}, nil
	}

	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Debug("connected to run storage")
	return postgres.NewScoreRepository(db), func() { db.Close() }, nil
}

func newRunsCmd() *cobra.Command {
	var limit int
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored scoring runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := requireRepository(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSETS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Status, r.SetCount, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default $DATABASE_URL)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var out string
	var alpha float64
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Render the report of a stored run",
		Long: `Render the report of a stored run.

Example: genescore report 0190f1c2-7a4e-7c3b-9a51-2f0d7e9b6c11 --out run.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := requireRepository(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := app.NewScoreService(rng.NewPCGAdapter(), nil, nil, app.WithRepository(repo))
			rn, err := svc.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r, err := report.Build(rn, alpha)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(r.Markdown())
				return err
			}
			return r.Write(out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Report file; .html renders HTML (default markdown on stdout)")
	cmd.Flags().Float64Var(&alpha, "alpha", report.DefaultAlpha, "FDR threshold for counting significant cells")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default $DATABASE_URL)")
	return cmd
}

func requireRepository(ctx context.Context, url string) (ports.ScoreRepository, func(), error) {
	repo, closeDB, err := openRepository(ctx, url, internal.NewDefaultLogger())
	if err != nil {
		return nil, nil, err
	}
	if repo == nil {
		return nil, nil, fmt.Errorf("no database configured: pass --database-url or set DATABASE_URL")
	}
	return repo, closeDB, nil
}
