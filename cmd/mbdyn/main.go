package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbdyn/internal/analysis"
	"github.com/san-kum/mbdyn/internal/automation"
	"github.com/san-kum/mbdyn/internal/config"
	"github.com/san-kum/mbdyn/internal/experiment"
	"github.com/san-kum/mbdyn/internal/multibody"
	"github.com/san-kum/mbdyn/internal/storage"
)

var (
	dataDir    string
	verbose    bool
	configFile string
	preset     string
	dt         float64
	duration   float64
	integrator string
	controller string
	initQ      []float64
	initV      []float64
	forces     []float64
	params     map[string]string
	hingeTol   float64
	maxPlots   int
	benchEvals int
	column     int
	separation float64
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	trials     int
	perturb    float64
	seed       int64
	grid       map[string]string
	metric     string

	logger = slog.Default()
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mbdyn",
		Short:        "rigid multibody dynamics lab",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mbdyn", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run simulation and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)

	dynamicsCmd := &cobra.Command{
		Use:   "dynamics [model]",
		Short: "print forward dynamics at the configured state",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printDynamics,
	}
	addConfigFlags(dynamicsCmd)

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "benchmark forward dynamics and integration",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchModel,
	}
	addConfigFlags(benchCmd)
	benchCmd.Flags().IntVar(&benchEvals, "evals", 10000, "forward dynamics evaluations")

	compareCmd := &cobra.Command{
		Use:   "compare [model] [integrator1] [integrator2] ...",
		Short: "compare integrators on the same model",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	addConfigFlags(compareCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&maxPlots, "max", 6, "maximum number of columns to plot")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, integrators and controllers",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := experiment.NewRegistry()
			fmt.Printf("models:      %s\n", strings.Join(registry.ListModels(), ", "))
			fmt.Printf("integrators: %s\n", strings.Join(registry.ListIntegrators(), ", "))
			fmt.Printf("controllers: %s\n", strings.Join(registry.ListControllers(), ", "))
			return nil
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&column, "col", 0, "state column to analyze")

	chaosCmd := &cobra.Command{
		Use:   "chaos [model]",
		Short: "estimate the largest lyapunov exponent",
		Args:  cobra.MaximumNArgs(1),
		RunE:  estimateLyapunov,
	}
	addConfigFlags(chaosCmd)
	chaosCmd.Flags().Float64Var(&separation, "d0", 1e-8, "initial trajectory separation")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "sweep a model parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "name", "length", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 2.0, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "run perturbed trials concurrently",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 32, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "velocity perturbation amplitude")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search controller parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneController,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringToStringVar(&grid, "grid", nil, "controller parameter values (name=v1:v2:v3)")
	tuneCmd.Flags().StringVar(&metric, "metric", "control_effort", "metric to minimize")

	rootCmd.AddCommand(runCmd, dynamicsCmd, benchCmd, compareCmd, listCmd, plotCmd, exportCmd,
		analyzeCmd, chaosCmd, scenarioCmd, sweepCmd, monteCarloCmd, tuneCmd, modelsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator")
	cmd.Flags().StringVar(&controller, "controller", "none", "controller")
	cmd.Flags().Float64SliceVar(&initQ, "q", nil, "initial generalized positions")
	cmd.Flags().Float64SliceVar(&initV, "v", nil, "initial generalized velocities")
	cmd.Flags().Float64SliceVar(&forces, "force", nil, "constant applied generalized forces")
	cmd.Flags().StringToStringVar(&params, "param", nil, "model parameter overrides (name=value)")
	cmd.Flags().Float64Var(&hingeTol, "hinge-tol", 0, "hinge inertia singularity tolerance (0 keeps the default)")
}

// resolveConfig layers the preset, then the config file, then explicitly set
// flags.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	cfg := config.DefaultConfig()
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if model != "" && model != loaded.Model {
			return nil, fmt.Errorf("config %s is for model %s, not %s", configFile, loaded.Model, model)
		}
		cfg = loaded
	case preset != "":
		if model == "" {
			return nil, fmt.Errorf("--preset needs a model")
		}
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	case model != "" && model != cfg.Model:
		cfg.Model = model
		cfg.InitState = config.InitStateConfig{}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("controller") {
		cfg.Controller = controller
	}
	if flags.Changed("q") {
		cfg.InitState.Q = initQ
	}
	if flags.Changed("v") {
		cfg.InitState.V = initV
	}
	if flags.Changed("force") {
		cfg.Forces = forces
	}
	if flags.Changed("hinge-tol") {
		cfg.HingeInertiaTolerance = hingeTol
	}
	for name, raw := range params {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[name] = value
	}
	return cfg, cfg.Validate()
}

func setupExperiment(cmd *cobra.Command, args []string) (*experiment.Experiment, error) {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	exp := experiment.New(cfg, experiment.NewRegistry(), logger)
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	return exp, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	cfg := exp.Config()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("running %s simulation...\n", cfg.Model)
	start := time.Now()

	result, runErr := exp.Run(context.Background())
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)

	plant := exp.Plant()
	runID, err := st.Save(storage.RunMetadata{
		Model:        cfg.Model,
		Dt:           cfg.Dt,
		Duration:     cfg.Duration,
		Integrator:   cfg.Integrator,
		Controller:   cfg.Controller,
		Params:       cfg.ModelParams(),
		NumPositions: plant.NumPositions(),
		NumBodies:    plant.NumBodies(),
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("energy drift: %.3e\n", result.EnergyDrift)
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(result.Metrics) {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}

	// A partial run is stored before the failure is reported.
	return runErr
}

func printDynamics(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	plant, ctx := exp.Plant(), exp.Context()

	fmt.Printf("model: %s\n", exp.Config().Model)
	fmt.Printf("bodies: %d  joints: %d  nq: %d  nv: %d\n\n",
		plant.NumBodies(), plant.NumJoints(), plant.NumPositions(), plant.NumVelocities())
	fmt.Printf("q: %s\n", formatVector(ctx.Positions()))
	fmt.Printf("v: %s\n", formatVector(ctx.Velocities()))

	vdot, err := plant.EvalForwardDynamics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("vdot: %s\n", formatVector(vdot))
	fmt.Printf("gravity forces: %s\n\n", formatVector(plant.CalcGravityGeneralizedForces(ctx)))

	if plant.NumVelocities() > 0 {
		M := plant.CalcMassMatrixViaInverseDynamics(ctx)
		fmt.Printf("mass matrix:\n%s\n\n", formatMatrix(M, "  "))
	}

	poses := plant.EvalBodyPoses(ctx)
	accels, err := plant.EvalBodySpatialAccelerations(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BODY\tMASS\tPOSITION\tANGULAR ACCEL\tLINEAR ACCEL")
	for i := range poses {
		b := plant.Body(multibody.BodyIndex(i))
		p := poses[i].Translation()
		a := accels[i]
		fmt.Fprintf(w, "%s\t%.4g\t%s\t%s\t%s\n", b.Name(), b.Mass(ctx),
			formatVector(p[:]), formatVector(a.Rotational[:]), formatVector(a.Translational[:]))
	}
	return w.Flush()
}

func formatVector(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// formatMatrix indents every row of m, the first included.
func formatMatrix(m mat.Matrix, indent string) string {
	return fmt.Sprintf("%s%v", indent, mat.Formatted(m, mat.Prefix(indent), mat.Squeeze()))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func benchModel(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	cfg := exp.Config()
	plant, ctx := exp.Plant(), exp.Context()

	fmt.Printf("benchmarking %s (nq=%d, nv=%d)\n\n", cfg.Model, plant.NumPositions(), plant.NumVelocities())

	// Each evaluation perturbs v so the forward cache is recomputed.
	work := ctx.Clone()
	v := work.Velocities()
	start := time.Now()
	for i := 0; i < benchEvals; i++ {
		if len(v) > 0 {
			v[i%len(v)] += 1e-9
			if err := work.SetVelocities(v); err != nil {
				return err
			}
		}
		if _, err := plant.EvalForwardDynamics(work); err != nil {
			return err
		}
	}
	serial := time.Since(start)

	states := make([][]float64, benchEvals)
	x := ctx.PositionsAndVelocities()
	for i := range states {
		states[i] = append([]float64(nil), x...)
		if nv := plant.NumVelocities(); nv > 0 {
			states[i][plant.NumPositions()+i%nv] += 1e-9 * float64(i)
		}
	}
	start = time.Now()
	if _, err := multibody.BatchForwardDynamics(ctx, states); err != nil {
		return err
	}
	batch := time.Since(start)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tEVALS\tTIME\tEVALS/SEC")
	fmt.Fprintf(w, "serial\t%d\t%v\t%.0f\n", benchEvals, serial, float64(benchEvals)/serial.Seconds())
	fmt.Fprintf(w, "batch\t%d\t%v\t%.0f\n", benchEvals, batch, float64(benchEvals)/batch.Seconds())
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DT\tSTEPS\tTIME\tSTEPS/SEC\tENERGY DRIFT")
	for _, step := range []float64{cfg.Dt * 10, cfg.Dt, cfg.Dt / 10} {
		run := cfg.Clone()
		run.Dt = step
		run.Duration = math.Min(cfg.Duration, 1.0)
		e := experiment.New(run, experiment.NewRegistry(), logger)
		if err := e.Setup(); err != nil {
			return err
		}
		start := time.Now()
		result, err := e.Run(context.Background())
		if err != nil {
			fmt.Fprintf(w, "%.4g\terror: %v\n", step, err)
			continue
		}
		elapsed := time.Since(start)
		fmt.Fprintf(w, "%.4g\t%d\t%v\t%.0f\t%.2e\n",
			step, result.StepsTaken, elapsed, float64(result.StepsTaken)/elapsed.Seconds(), result.EnergyDrift)
	}
	return w.Flush()
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args[:1])
	if err != nil {
		return err
	}

	fmt.Printf("comparing integrators for %s (dt=%.4f, duration=%.1fs)\n\n", base.Model, base.Dt, base.Duration)
	fmt.Printf("%-12s  %-12s  %-12s  %-12s\n", "integrator", "final_q0", "energy_drift", "time_ms")
	fmt.Println(strings.Repeat("-", 52))

	for _, name := range args[1:] {
		cfg := base.Clone()
		cfg.Integrator = name
		exp := experiment.New(cfg, experiment.NewRegistry(), logger)
		if err := exp.Setup(); err != nil {
			fmt.Printf("%-12s  error: %v\n", name, err)
			continue
		}

		start := time.Now()
		result, err := exp.Run(context.Background())
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("%-12s  error: %v\n", name, err)
			continue
		}

		finalQ0 := 0.0
		if last := result.States[len(result.States)-1]; len(last) > 0 {
			finalQ0 = last[0]
		}
		fmt.Printf("%-12s  %12.6f  %12.2e  %12.2f\n", name, finalQ0, result.EnergyDrift, float64(elapsed.Microseconds())/1000)
	}
	return nil
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
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tINTEG\tCTRL\tSTEPS\tDRIFT")
	for _, run := range runs {
		ctrl := run.Controller
		if ctrl == "" {
			ctrl = "none"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%s\t%d\t%.2e\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			ctrl,
			run.StepsTaken,
			run.EnergyDrift,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	header, rows, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d over %.3gs\n\n", len(rows), times[len(times)-1])

	numVars := min(len(header), maxPlots)
	for col := 0; col < numVars; col++ {
		data := make([]float64, len(rows))
		for i := range rows {
			data[i] = rows[i][col]
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s vs time", header[col])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	header, rows, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(rows) < 2 || column < 0 || column >= len(header) {
		return fmt.Errorf("no data in column %d", column)
	}

	data := make([]float64, len(rows))
	for i := range rows {
		data[i] = rows[i][column]
	}
	freqs, power := analysis.PowerSpectrum(data, meta.Dt)

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("model: %s\n\n", meta.Model)
	graph := asciigraph.Plot(power[:max(len(power)/4, 1)],
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("power spectrum (%s), 0-%.3g Hz", header[column], freqs[len(freqs)/4])),
	)
	fmt.Println(graph)
	fmt.Println()

	freq := analysis.DominantFrequency(data, meta.Dt)
	fmt.Printf("dominant frequency: %.3f hz\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1.0/freq)
	}
	return nil
}

func estimateLyapunov(cmd *cobra.Command, args []string) error {
	exp, err := setupExperiment(cmd, args)
	if err != nil {
		return err
	}
	cfg := exp.Config()
	integ, err := experiment.NewRegistry().GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}

	lambda, err := analysis.LyapunovExponent(exp.System(), integ, exp.InitialState(), cfg.Dt, cfg.Duration, separation)
	if err != nil {
		return err
	}
	fmt.Printf("largest lyapunov exponent: %.4f 1/s\n", lambda)
	if lambda > 0.1 {
		fmt.Println("trajectory is chaotic")
	}
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("scenario %s: %s\n", scenario.Name, scenario.Description)

	results, err := automation.RunScenario(context.Background(), scenario, experiment.NewRegistry(), logger)
	for i, result := range results {
		fmt.Printf("  step %d (%s): %d steps, energy drift %.2e\n",
			i+1, scenario.Steps[i].Model, result.StepsTaken, result.EnergyDrift)
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	results, err := automation.RunSweep(context.Background(), &automation.ParameterSweep{
		Base: cfg, Param: sweepParam, Min: sweepMin, Max: sweepMax, NumSteps: sweepSteps,
	}, experiment.NewRegistry(), logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tMIN ENERGY\tMAX ENERGY\tDRIFT\tFINAL q0\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		q0 := 0.0
		if len(r.FinalState) > 0 {
			q0 = r.FinalState[0]
		}
		fmt.Fprintf(w, "%.4g\t%.6g\t%.6g\t%.2e\t%.6f\n", r.ParamValue, r.MinEnergy, r.MaxEnergy, r.EnergyDrift, q0)
	}
	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}
	return err
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	start := time.Now()
	results, err := automation.RunMonteCarlo(context.Background(), &automation.MonteCarloConfig{
		Base: cfg, Perturbation: perturb, NumTrials: trials, Seed: seed,
	}, experiment.NewRegistry(), logger)
	if err != nil {
		logger.Warn("some trials failed", slog.Any("error", err))
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("%d trials in %v (seed %d)\n", len(results), time.Since(start), seed)
	fmt.Printf("stable: %d  unstable: %d\n", stable, unstable)
	return nil
}

func tuneController(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	values := make(map[string][]float64, len(grid))
	for name, raw := range grid {
		for _, field := range strings.Split(raw, ":") {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return fmt.Errorf("grid %s: %w", name, err)
			}
			values[name] = append(values[name], v)
		}
	}

	search := &automation.GridSearch{Base: cfg, Grid: values, Metric: metric}
	best, value, err := search.Search(context.Background(), experiment.NewRegistry(), logger)
	if err != nil {
		return err
	}
	fmt.Printf("best %s: %.6g\n", metric, value)
	for _, name := range sortedKeys(best) {
		fmt.Printf("  %s = %g\n", name, best[name])
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
