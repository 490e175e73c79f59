package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/ScottSauers/ferromic"

	log "github.com/sirupsen/logrus"
)

var (
	flagCodeml     = "codeml"
	flagAllPairs   = false
	flagWorkers    = 0
	flagTimeout    = ferromic.DefaultCodemlTimeout
	flagQuiet      = false
	flagCpuProfile = ""
)

func init() {
	flag.StringVar(&flagCodeml, "codeml", flagCodeml,
		"The location of the 'codeml' executable.")
	flag.BoolVar(&flagAllPairs, "all-pairs", flagAllPairs,
		"When set, every pair of samples is compared, including pairs\n"+
			"\tthat cross the cohorts. The default compares only pairs\n"+
			"\twithin the same cohort.")
	flag.IntVar(&flagWorkers, "workers", flagWorkers,
		"The number of concurrent codeml invocations. When zero, the\n"+
			"\tcount is sized from the machine: half the CPUs, capped at\n"+
			"\tone worker per 2 GiB of available memory.")
	flag.DurationVar(&flagTimeout, "timeout", flagTimeout,
		"How long one codeml invocation may run before it is killed\n"+
			"\tand the pair recorded as failed.")
	flag.BoolVar(&flagQuiet, "quiet", flagQuiet,
		"When set, the only console outputs will be warnings and errors.")
	flag.StringVar(&flagCpuProfile, "cpuprofile", flagCpuProfile,
		"When set, a CPU profile will be written to the file specified.")

	flag.Usage = usage
	flag.Parse()
}

func main() {
	if flag.NArg() != 2 {
		flag.Usage()
	}
	outDir, phyDir := flag.Arg(0), flag.Arg(1)

	if !flagQuiet {
		ferromic.Verbose = true
	}
	if err := os.MkdirAll(outDir, 0777); err != nil {
		fatalf("Could not create output directory '%s': %s.\n", outDir, err)
	}
	logFile, err := ferromic.OpenRunLog(outDir, "dnds_analysis.log", flagQuiet)
	if err != nil {
		fatalf("%s\n", err)
	}
	defer logFile.Close()

	if len(flagCpuProfile) > 0 {
		f, err := os.Create(flagCpuProfile)
		if err != nil {
			fatalf("%s\n", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	conf := &ferromic.RunConf{
		AllPairs:   flagAllPairs,
		CodemlPath: flagCodeml,
		TimeoutSec: int(flagTimeout.Seconds()),
		Workers:    flagWorkers,
	}
	prev, err := ferromic.LoadRunConf(outDir)
	if err != nil {
		fatalf("%s\n", err)
	}
	if err := conf.CheckResume(prev); err != nil {
		fatalf("%s\n", err)
	}
	if err := conf.Save(outDir); err != nil {
		fatalf("%s\n", err)
	}

	cache, err := ferromic.LoadCache(path.Join(outDir, ferromic.FileResultsCache))
	if err != nil {
		fatalf("%s\n", err)
	}

	// If the process is killed, persist the cache so completed pairs
	// are not recomputed on the next run.
	mainQuit := make(chan struct{})
	attachSignalHandler(cache, mainQuit)

	files, err := ferromic.ListRegionFiles(phyDir)
	if err != nil {
		fatalf("%s\n", err)
	}
	log.Infof("Found %d region files to process", len(files))

	start := time.Now()
	processed, skipped := 0, 0
	for i, file := range files {
		select {
		case <-mainQuit:
			<-mainQuit // wait for the handler to finish saving.
			return
		default:
		}

		regionID := strings.TrimSuffix(path.Base(file), ".phy")
		pairwiseCSV, statsCSV := ferromic.RegionOutputFiles(
			outDir, regionID, flagAllPairs)
		if exists(pairwiseCSV) && exists(statsCSV) {
			log.Infof("Results already exist for %s. Skipping.", regionID)
			skipped++
			continue
		}

		if err := processRegionFile(file, outDir, cache); err != nil {
			log.Errorf("Skipping region %s: %s", regionID, err)
			continue
		}

		// Persisting here is the resume checkpoint: everything this
		// region computed is now durable.
		if err := cache.Save(); err != nil {
			fatalf("Could not save cache: %s\n", err)
		}
		processed++
		log.Infof("Overall progress: %d/%d region files", i+1, len(files))
	}

	if err := ferromic.CombinePairwiseFiles(outDir); err != nil {
		log.Errorf("%s", err)
	}
	if err := summarizeRun(outDir); err != nil {
		log.Errorf("%s", err)
	}
	if err := cache.Save(); err != nil {
		fatalf("Could not save cache: %s\n", err)
	}
	log.Infof("Processed %d regions (%d already complete) in %s",
		processed, skipped, time.Since(start).Round(time.Second))
}

// processRegionFile runs one region end to end: parse, invalidate stale
// cache entries if duplicates were renamed, resolve every pair through
// the worker pool, and write the region's two tables.
func processRegionFile(file, outDir string, cache *ferromic.Cache) error {
	region, err := ferromic.ReadRegionFile(file)
	if err != nil {
		return err
	}
	if region.HadDuplicates {
		log.Infof("Clearing cache for %s due to duplicate sample names",
			region.ID)
		cache.InvalidateRegion(region.ID)
	}

	scratch := path.Join(outDir, "temp", region.ID)
	defer os.RemoveAll(scratch)

	runner := ferromic.NewCodemlRunner(flagCodeml, scratch)
	runner.Timeout = flagTimeout

	dispatcher := &ferromic.Dispatcher{
		Cache:    cache,
		Exec:     runner,
		Workers:  flagWorkers,
		AllPairs: flagAllPairs,
	}
	results, err := dispatcher.ProcessRegion(region)
	if err != nil {
		return err
	}

	pairwiseCSV, statsCSV := ferromic.RegionOutputFiles(
		outDir, region.ID, flagAllPairs)
	if err := ferromic.WritePairwiseCSV(pairwiseCSV, results); err != nil {
		return err
	}
	stats := ferromic.AggregateRegion(region, results)
	return ferromic.WriteSampleStatsCSV(statsCSV, stats)
}

// summarizeRun reduces every haplotype table in the output directory to
// the per-cohort summary.
func summarizeRun(outDir string) error {
	files, err := ferromic.ListHaplotypeStatsFiles(outDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Warn("No haplotype statistics found to summarize")
		return nil
	}

	var rows []ferromic.SampleStats
	for _, file := range files {
		fileRows, err := ferromic.ReadSampleStatsCSV(file)
		if err != nil {
			log.Warnf("Skipping unreadable haplotype table: %s", err)
			continue
		}
		rows = append(rows, fileRows...)
	}

	summaries := ferromic.SummarizeCohorts(rows)
	for _, s := range summaries {
		log.Infof("Cohort %d: %d haplotypes, mean omega %s, "+
			"median %s, %d comparisons",
			s.Cohort, s.Count, ferromic.FormatOmega(s.Mean),
			ferromic.FormatOmega(s.Median), s.TotalComparisons)
	}
	return ferromic.WriteCohortSummaryCSV(
		path.Join(outDir, ferromic.FileCohortSummary), summaries)
}

// attachSignalHandler listens for SIGINT and SIGTERM and persists the
// cache before exiting, preserving every completed comparison.
func attachSignalHandler(cache *ferromic.Cache, mainQuit chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		<-sigChan
		mainQuit <- struct{}{}
		if err := cache.Save(); err != nil {
			log.Errorf("Could not save cache during shutdown: %s", err)
		}
		os.Exit(1)
	}()
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
}

func exists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format, v...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr,
		"\nUsage: %s [flags] output-directory phy-directory\n",
		path.Base(os.Args[0]))
	ferromic.PrintFlagDefaults()
	os.Exit(1)
}
