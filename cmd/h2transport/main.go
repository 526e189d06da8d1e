package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/h2transport/internal/config"
	"github.com/san-kum/h2transport/internal/exports"
	"github.com/san-kum/h2transport/internal/sim"
	"github.com/san-kum/h2transport/internal/storage"
	"github.com/san-kum/h2transport/internal/viz"
)

var (
	dataDir   string
	themeName string
	verbose   bool
	preset    string
	finalTime float64
	steady    bool
	outDir    string
	noFiles   bool
	save      bool
	field     string
	width     int
	height    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "h2transport",
		Short:         "hydrogen transport in 1D multi-material slabs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".h2transport", "data directory")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "ocean", "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log solver iterations")

	runCmd := &cobra.Command{
		Use:   "run [config.yaml ...]",
		Short: "run one or more simulations",
		RunE:  runSimulations,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "use a preset configuration (group/name)")
	runCmd.Flags().Float64Var(&finalTime, "final-time", 0, "override settings.final_time")
	runCmd.Flags().BoolVar(&steady, "stationary", false, "force a stationary run")
	runCmd.Flags().StringVar(&outDir, "out", "", "override exports.folder")
	runCmd.Flags().BoolVar(&noFiles, "no-files", false, "keep exports in memory")
	runCmd.Flags().BoolVar(&save, "save", false, "store the run in the data directory")

	validateCmd := &cobra.Command{
		Use:   "validate [config.yaml]",
		Short: "check a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  validateConfig,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list preset configurations",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	showCmd := &cobra.Command{
		Use:   "show [group/name]",
		Short: "print a preset as yaml",
		Args:  cobra.ExactArgs(1),
		RunE:  showPreset,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [column]",
		Short: "plot derived quantities or a final profile of a stored run",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&field, "field", "", "plot the final profile of a field instead")
	plotCmd.Flags().IntVar(&width, "width", 80, "chart width")
	plotCmd.Flags().IntVar(&height, "height", 10, "chart height")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id] [path]",
		Short: "export a stored run to JSON (stdout by default)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportJSON,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id] [table] [path]",
		Short: "export a derived quantity table to CSV",
		Args:  cobra.RangeArgs(1, 3),
		RunE:  exportCSV,
	}

	rootCmd.AddCommand(runCmd, validateCmd, presetsCmd, showCmd, listCmd, plotCmd, exportJSONCmd, exportCSVCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, viz.NewStyles(viz.GetTheme(themeName)).Error.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func styles() viz.Styles { return viz.NewStyles(viz.GetTheme(themeName)) }

func logger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type job struct {
	name string
	cfg  *config.Config
}

func loadJobs(args []string) ([]job, error) {
	var jobs []job
	if preset != "" {
		group, name, ok := strings.Cut(preset, "/")
		cfg := config.GetPreset(group, name)
		if !ok || cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (groups: %v)", preset, config.Groups())
		}
		jobs = append(jobs, job{name: group + "_" + name, cfg: cfg})
	}

	for _, path := range args {
		cfg, warnings, err := config.Load(path)
		fmt.Fprint(os.Stderr, styles().Warnings(warnings))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		jobs = append(jobs, job{name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), cfg: cfg})
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("nothing to run: pass configuration files or --preset")
	}
	return jobs, nil
}

func runSimulations(cmd *cobra.Command, args []string) error {
	jobs, err := loadJobs(args)
	if err != nil {
		return err
	}

	sims := make([]*sim.Simulation, len(jobs))
	for i, j := range jobs {
		if cmd.Flags().Changed("final-time") {
			j.cfg.Settings.FinalTime = finalTime
		}
		if steady {
			j.cfg.Settings.Transient = false
		}

		m, err := sim.Build(j.cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}

		opts := []sim.Option{sim.WithLogger(logger().With("run", j.name))}
		if !noFiles {
			folder := j.cfg.Exports.Folder
			if outDir != "" {
				folder = outDir
			}
			if folder == "" {
				folder = config.DefaultFolder
			}
			if len(jobs) > 1 {
				folder = filepath.Join(folder, j.name)
			}
			w, err := exports.NewFolder(folder)
			if err != nil {
				return err
			}
			opts = append(opts, sim.WithWriter(w))
		}
		sims[i] = sim.New(m, opts...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, errs := sim.NewBatch(sims...).Run(ctx)

	var st *storage.Store
	if save {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	failed := 0
	for i, j := range jobs {
		if errs[i] != nil {
			failed++
			fmt.Println(styles().Error.Render(fmt.Sprintf("%s: %v", j.name, errs[i])))
			continue
		}
		end := 0.0
		if j.cfg.Settings.Transient {
			end = j.cfg.Settings.FinalTime
		}
		fmt.Println(styles().Summary(j.name, results[i], end))

		if st != nil {
			runID, err := st.Save(j.name, j.cfg, results[i])
			if err != nil {
				return err
			}
			fmt.Printf("run id: %s\n", runID)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(jobs))
	}
	return nil
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := config.Load(args[0])
	fmt.Print(styles().Warnings(warnings))
	if err != nil {
		return err
	}
	m, err := sim.Build(cfg)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	fmt.Println(styles().Success.Render(args[0] + ": ok"))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	groups := config.Groups()
	if len(args) == 1 {
		groups = []string{args[0]}
	}
	for _, g := range groups {
		presets := config.ListPresets(g)
		if len(presets) == 0 {
			fmt.Printf("no presets for group: %s\n", g)
			continue
		}
		fmt.Printf("%s:\n", g)
		for _, p := range presets {
			fmt.Printf("  %s/%s\n", g, p)
		}
	}
	return nil
}

func showPreset(cmd *cobra.Command, args []string) error {
	group, name, _ := strings.Cut(args[0], "/")
	cfg := config.GetPreset(group, name)
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s", args[0])
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tFINAL\tSTEPS\tREJECTED\tTABLES")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%gs\t%d\t%d\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.FinalTime,
			run.Steps,
			run.Rejections,
			strings.Join(run.Tables, ","),
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	res, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	if field != "" {
		prof, ok := res.Fields[field]
		if !ok {
			return fmt.Errorf("run %s has no field %q", runID, field)
		}
		chart, err := viz.ProfileChart(prof, width, height)
		if err != nil {
			return err
		}
		fmt.Println(chart)
		return nil
	}

	plotted := 0
	for name, table := range res.DerivedQuantities {
		if name == sim.ErrorSink {
			continue
		}
		columns := table.Header[1:]
		if len(args) == 2 {
			columns = []string{args[1]}
		}
		for _, col := range columns {
			chart, err := viz.Chart(table, col, width, height)
			if err != nil {
				if len(args) == 2 {
					continue
				}
				return err
			}
			fmt.Println(chart)
			fmt.Println()
			plotted++
		}
	}
	if plotted == 0 {
		return fmt.Errorf("no data to plot")
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]
	path := "-"
	if len(args) == 2 {
		path = args[1]
	}

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	res, err := st.LoadResult(runID)
	if err != nil {
		return err
	}
	return storage.ExportJSON(path, meta.Name, res)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]
	table := "derived_quantities"
	if len(args) > 1 {
		table = args[1]
	}

	st := storage.New(dataDir)
	data, err := st.LoadTable(runID, table)
	if err != nil {
		return err
	}

	path := runID + "_" + table + ".csv"
	if len(args) == 3 {
		path = args[2]
	}
	if err := storage.ExportCSV(path, data); err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", len(data.Rows), path)
	return nil
}
