// Command-line interface that generates the task commands of one synapse
// assignment pipeline stage and delivers them to a sink.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/janelia-flyem/voltasks/pipeline"
	"github.com/janelia-flyem/voltasks/queue"
	"github.com/janelia-flyem/voltasks/storage/ngprecomputed"
	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Print the metadata engine version and exit.
	showVersion = flag.Bool("version", false, "")

	// Treat the job file as a JSON request instead of TOML.
	jsonJob = flag.Bool("json", false, "")

	// Only print the number of levels and tasks.
	countOnly = flag.Bool("len", false, "")

	// Restrict output to a range of levels.
	offset = flag.Int("offset", 0, "")
	count  = flag.Int("count", -1, "")

	// Override the populate settings of the job.
	workers   = flag.Int("workers", 0, "")
	batchSize = flag.Int("batch", 0, "")
	runID     = flag.String("runid", "", "")
)

const helpMessage = `
voltasks generates the task commands for one stage of a chunked volume pipeline.

Usage: voltasks [options] <job file>

      -json       (flag)    Job file is a JSON request rather than TOML.
      -len        (flag)    Print the number of levels and tasks, then exit.
      -offset     =number   First level to generate.
      -count      =number   Number of levels to generate.  Default is all remaining.
      -workers    =number   Number of concurrent slices.  Overrides [populate].
      -batch      =number   Descriptors per sink write.  Overrides [populate].
      -runid      =string   Run ID attached to every batch.
      -version    (flag)    Print the volume metadata engine version.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Stages:

	%s
	%s
`

func usage() {
	fmt.Printf(helpMessage, strings.Join(pipeline.StageNames(), "\n\t"), pipeline.StageInitVolumes)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if *runVerbose {
		volume.Verbose = true
	}
	if *showVersion {
		fmt.Println(ngprecomputed.GetEngine())
		os.Exit(0)
	}
	if *showHelp || flag.NArg() != 1 {
		flag.Usage()
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, flag.Args()[0])
	volume.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, filename string) error {
	if *jsonJob {
		return runJSON(ctx, filename)
	}
	config, err := pipeline.LoadConfig(filename)
	if err != nil {
		return err
	}
	config.Logging.SetLogger()
	planner := config.Planner()

	if config.Job.Stage == pipeline.StageInitVolumes {
		return pipeline.InitVolumes(ctx, planner, config.DecodeParams)
	}
	it, err := config.Iterator(ctx, planner)
	if err != nil {
		return err
	}
	if it, err = pipeline.SliceLevels(it, *offset, *count); err != nil {
		return err
	}
	if *countOnly {
		return printLen(it)
	}
	sink, err := config.OpenSink(ctx, os.Stdout)
	if err != nil {
		return err
	}
	return generate(ctx, it, sink, config.Populate)
}

// runJSON handles a JSON job.  Volumes are read from precomputed metadata and
// tasks are written to stdout.
func runJSON(ctx context.Context, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	job, err := pipeline.ParseJobJSON(data)
	if err != nil {
		return err
	}
	config := pipeline.Config{}
	planner := config.Planner()
	if job.Stage == pipeline.StageInitVolumes {
		return pipeline.InitVolumes(ctx, planner, job.DecodeParams)
	}
	it, err := pipeline.BuildIterator(ctx, planner, job.Stage, job.DecodeParams)
	if err != nil {
		return err
	}
	if it, err = pipeline.SliceLevels(it, *offset, *count); err != nil {
		return err
	}
	if *countOnly {
		return printLen(it)
	}
	return generate(ctx, it, queue.NewWriterSink(os.Stdout), job.Populate)
}

func printLen(it tasks.Iterator) error {
	fmt.Printf("%s: %d levels, %d tasks\n", it.Stage(), it.Len(), it.NumTasks())
	return nil
}

func generate(ctx context.Context, it tasks.Iterator, sink queue.Sink, opts queue.Options) error {
	defer func() {
		if err := sink.Close(); err != nil {
			volume.Errorf("Error closing sink: %v\n", err)
		}
	}()
	if *workers != 0 {
		opts.Workers = *workers
	}
	if *batchSize != 0 {
		opts.BatchSize = *batchSize
	}
	if *runID != "" {
		opts.RunID = *runID
	}
	stats, err := queue.Populate(ctx, it, sink, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s\n", stats)
	return nil
}
