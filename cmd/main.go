package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"tiffconv/assembler"
	"tiffconv/config"
	"tiffconv/contracts"
	"tiffconv/converter"
	"tiffconv/files_manager"
	"tiffconv/loader"
	"tiffconv/logger"
	"tiffconv/metrics"
	"tiffconv/storage"
	"tiffconv/transcoder"
)

type InputFlags = contracts.InputFlags

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(2)
	}

	input := flag.String("input", "", "Input TIFF file or directory of TIFF files")
	output := flag.String("output", "", "Output file or directory (defaults to beside the input)")
	format := flag.String("format", "PDF", "Output format: PDF or JPEG")
	quality := flag.Int("quality", cfg.Conversion.DefaultQuality, "JPEG quality (1-100)")
	compress := flag.Bool("compress", false, "Recompress PDF pages as JPEG at -quality")
	workers := flag.Int("workers", cfg.Conversion.Workers, "Pages transcoded in parallel per document")
	report := flag.Bool("report", false, "Print the report of successful conversions")
	store := flag.String("store", "", "Object mode: s3 or dir")
	bucket := flag.String("bucket", "", "Object mode: bucket holding source and destination")
	srcKey := flag.String("src-key", "", "Object mode: key of the TIFF to convert")
	dstKey := flag.String("dst-key", "", "Object mode: key to store the result under")
	metricsAddr := flag.String("metrics-addr", cfg.Metrics.Addr, "Serve Prometheus metrics on this address")
	flag.Parse()

	args := InputFlags{
		Input:        *input,
		Output:       *output,
		OutputFormat: *format,
		Quality:      *quality,
		Compress:     *compress,
		Workers:      *workers,
		Report:       *report,
		Store:        strings.ToLower(*store),
		Bucket:       *bucket,
		SourceKey:    *srcKey,
		DestKey:      *dstKey,
		MetricsAddr:  *metricsAddr,
	}

	if err := logger.Init(logger.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(2)
	}

	metrics.Init()
	if args.MetricsAddr != "" {
		go serveMetrics(args.MetricsAddr)
	}

	conv, err := newConverter(cfg, args)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		logger.Close()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	startTime := time.Now()
	code := run(ctx, conv, cfg, args)
	log.Info().Dur("elapsed", time.Since(startTime)).Int("exit_code", code).Msg("total time taken")
	stop()
	logger.Close()
	os.Exit(code)
}

func newConverter(cfg config.Config, args InputFlags) (*converter.Converter, error) {
	engine := assembler.Engine(strings.ToLower(cfg.Conversion.Engine))
	if !slices.Contains(assembler.Engines(), string(engine)) {
		return nil, fmt.Errorf("unknown PDF engine %q (available: %s)", engine, strings.Join(assembler.Engines(), ", "))
	}
	enc, err := transcoder.NewEncoder(cfg.Conversion.JPEGEncoder)
	if err != nil {
		return nil, err
	}
	ld, err := loader.NewDefault(cfg.Conversion.SecondaryDecoder, cfg.Conversion.DefaultDPI)
	if err != nil {
		return nil, err
	}
	return converter.New(ld, transcoder.New(enc), converter.Options{
		Engine:          engine,
		DetailThreshold: cfg.Conversion.DetailThreshold,
		Workers:         args.Workers,
		VerifyOutput:    cfg.Conversion.VerifyOutput,
	}), nil
}

func run(ctx context.Context, conv *converter.Converter, cfg config.Config, args InputFlags) int {
	req := contracts.ConversionRequest{
		OutputFormat: args.OutputFormat,
		Quality:      args.Quality,
		Compress:     args.Compress,
	}

	if args.Store != "" {
		return runObject(ctx, conv, cfg, args, req)
	}

	if args.Input == "" {
		fmt.Fprintln(os.Stderr, "[ERROR]: -input is required")
		flag.Usage()
		return 2
	}
	info, err := os.Stat(args.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return 2
	}
	if !info.IsDir() {
		if !convertFile(ctx, conv, req, args.Input, singleOutputPath(args), args.Report) {
			return 1
		}
		return 0
	}
	return runBatch(ctx, conv, cfg.Conversion.Concurrency, req, args)
}

func runObject(ctx context.Context, conv *converter.Converter, cfg config.Config, args InputFlags, req contracts.ConversionRequest) int {
	store, err := openStore(ctx, cfg, args.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return 2
	}
	out := conv.ConvertObject(ctx, store, contracts.ObjectRequest{
		Bucket:            args.Bucket,
		SourceKey:         args.SourceKey,
		DestKey:           args.DestKey,
		ConversionRequest: req,
	})
	printOutcome(args.SourceKey, out, args.Report)
	if !out.Success {
		return 1
	}
	return 0
}

func openStore(ctx context.Context, cfg config.Config, backend string) (storage.Store, error) {
	switch backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Options{
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			PartSize:        int64(cfg.Storage.PartSizeMB) << 20,
		})
	case "dir":
		return files_manager.NewDirStore(cfg.Storage.DirRoot), nil
	}
	return nil, fmt.Errorf("unknown store %q (expected s3 or dir)", backend)
}

func singleOutputPath(args InputFlags) string {
	format, err := contracts.ParseOutputFormat(args.OutputFormat)
	if err != nil {
		// the converter reports the invalid format before anything is written
		format = contracts.DocumentMulti
	}
	name := files_manager.OutputName(args.Input, format)
	if args.Output == "" {
		return filepath.Join(filepath.Dir(args.Input), name)
	}
	if info, err := os.Stat(args.Output); err == nil && info.IsDir() {
		return filepath.Join(args.Output, name)
	}
	return args.Output
}

type job struct {
	input  string
	output string
}

// batchJobs pairs the TIFF files directly under root and inside its
// subdirectories with their output paths below outDir.
func batchJobs(root, outDir string, format contracts.OutputFormat) ([]job, error) {
	var jobs []job
	files, _, err := files_manager.GetTIFFPaths(root)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		jobs = append(jobs, job{input: f, output: filepath.Join(outDir, files_manager.OutputName(f, format))})
	}
	folders, err := files_manager.GetTIFFFolders(root)
	if err != nil {
		return nil, err
	}
	for _, folder := range folders {
		for _, f := range folder.TiffFilesPaths {
			jobs = append(jobs, job{input: f, output: filepath.Join(outDir, folder.Name, files_manager.OutputName(f, format))})
		}
	}
	return jobs, nil
}

func runBatch(ctx context.Context, conv *converter.Converter, concurrency int, req contracts.ConversionRequest, args InputFlags) int {
	format, err := req.Validate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return 2
	}
	outDir := args.Output
	if outDir == "" {
		outDir = args.Input
	}
	jobs, err := batchJobs(args.Input, outDir, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		return 2
	}
	if len(jobs) == 0 {
		fmt.Println("No TIFF files found in the input directory.")
		return 0
	}
	log.Info().Int("files", len(jobs)).Int("concurrency", concurrency).Msg("starting conversion")

	sem := make(chan struct{}, max(concurrency, 1))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire a token
			defer func() { <-sem }() // Release the token

			if !convertFile(ctx, conv, req, j.input, j.output, args.Report) {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(j)
	}
	wg.Wait()

	fmt.Printf("Converted %d of %d files.\n", len(jobs)-failed, len(jobs))
	if failed > 0 {
		return 1
	}
	return 0
}

func convertFile(ctx context.Context, conv *converter.Converter, req contracts.ConversionRequest, input, output string, report bool) bool {
	data, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %s: %v\n", input, err)
		return false
	}
	out := conv.Convert(ctx, data, req)
	if out.Success {
		if err := files_manager.WriteFileAtomic(output, out.OutputBytes); err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %s: %v\n", output, err)
			return false
		}
	}
	printOutcome(input, out, report)
	return out.Success
}

func printOutcome(name string, out contracts.ConversionOutcome, report bool) {
	if !out.Success {
		fmt.Fprintf(os.Stderr, "[ERROR] %s: %s\n%s", name, out.Message, out.Report)
		return
	}
	fmt.Printf("%s: %s\n", name, out.Message)
	if report {
		fmt.Print(out.Report)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
