package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"github.com/baronglock/Site-legendas/internal/bootstrap"
	"github.com/baronglock/Site-legendas/internal/config"
	"github.com/baronglock/Site-legendas/internal/diagnostics"
	"github.com/baronglock/Site-legendas/internal/domain"
	"github.com/baronglock/Site-legendas/internal/history"
	"github.com/baronglock/Site-legendas/internal/tui"
)

const usage = `usage: legendas <command> [flags]

commands:
  submit <file|url>        upload or submit media and follow the job
  history                  list recent jobs
  download <id> <format>   save srt, vtt or json subtitles
  translate <id> <lang>    request another translation of a completed job
  doctor                   check backend, token and directories
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	config.LoadDotEnv()
	settings, err := loadSettings()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	ctx := context.Background()
	args := os.Args[2:]
	switch os.Args[1] {
	case "submit":
		err = runSubmit(ctx, settings, args)
	case "history":
		err = runHistory(ctx, settings, args)
	case "download":
		err = runDownload(ctx, settings, args)
	case "translate":
		err = runTranslate(ctx, settings, args)
	case "doctor":
		err = runDoctor(ctx, settings)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func loadSettings() (domain.Settings, error) {
	store := config.NewJSONStore(filepath.Join(config.AppDir(), "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return settings, err
	}
	return config.Normalize(config.ApplyEnv(settings)), nil
}

func connect(ctx context.Context, settings domain.Settings, logf func(string, ...any)) (*bootstrap.Services, error) {
	svc, err := bootstrap.NewServices(settings, bootstrap.ServiceOptions{Logf: logf})
	if err != nil {
		return nil, err
	}
	if err := svc.Session.Check(); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: set %s or sign in", err, config.EnvToken)
	}
	if _, err := svc.RefreshSession(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("load account: %w", err)
	}
	return svc, nil
}

func runSubmit(ctx context.Context, settings domain.Settings, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	scopeFlag := fs.String("scope", "", "full, transcribe or translate (default from settings)")
	target := fs.String("target", "", "target language for translation")
	source := fs.String("lang", "", "source language, or auto")
	saveAs := fs.String("save", "", "download this format into the output directory when done")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("submit needs exactly one file or url")
	}

	// The progress view owns the terminal, so service logs are discarded.
	svc, err := connect(ctx, settings, func(string, ...any) {})
	if err != nil {
		return err
	}
	defer svc.Close()

	scope := svc.DefaultScope()
	if *scopeFlag != "" {
		if scope, err = bootstrap.ParseScope(*scopeFlag); err != nil {
			return err
		}
	}
	in := svc.Input(fs.Arg(0), scope)
	if *target != "" {
		in.TargetLanguage = *target
	}
	if *source != "" {
		in.SourceLanguage = *source
	}

	est, prepared, err := svc.Tracker.Estimate(in)
	if err != nil {
		return err
	}
	fmt.Printf("estimated cost: %.1f credits (%d min x %.1f)", est.CostCredits, est.EstimatedMinutes, est.Multiplier)
	if est.Provisional {
		fmt.Print(", provisional")
	}
	fmt.Println()

	events, stop := tui.Watch(svc.Tracker.Bus())
	defer stop()
	model := tui.NewModel(prepared.Source(), events, func() { _ = svc.Tracker.Cancel() })
	final, err := tui.Run(model, func() error {
		_, err := svc.Tracker.Submit(ctx, in)
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case final.Cancelled():
		return errors.New("cancelled")
	case final.Phase() != domain.PhaseCompleted:
		return errors.New(final.ErrorDetail())
	}

	jobID := svc.Tracker.Current().Job.ID
	fmt.Printf("job %s completed\n", jobID)
	if *saveAs == "" {
		return nil
	}
	if _, err := svc.History.Refresh(ctx); err != nil {
		log.Printf("refresh history: %v", err)
	}
	path, err := svc.History.Download(ctx, jobID, domain.Format(strings.ToLower(*saveAs)), settings.OutputDir)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runHistory(ctx context.Context, settings domain.Settings, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", settings.HistoryLimit, "number of jobs to list")
	_ = fs.Parse(args)
	settings.HistoryLimit = *limit

	svc, err := connect(ctx, settings, log.Printf)
	if err != nil {
		return err
	}
	defer svc.Close()

	rows, err := svc.History.Refresh(ctx)
	if err != nil {
		return err
	}
	printRows(os.Stdout, rows)
	return nil
}

func runDownload(ctx context.Context, settings domain.Settings, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	dir := fs.String("dir", settings.OutputDir, "destination directory")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return errors.New("download needs a job id and a format")
	}
	format := domain.Format(strings.ToLower(fs.Arg(1)))
	if !format.Valid() {
		return fmt.Errorf("unknown format %q (want srt, vtt or json)", fs.Arg(1))
	}

	svc, err := connect(ctx, settings, log.Printf)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.History.Refresh(ctx); err != nil {
		log.Printf("refresh history: %v", err)
	}
	path, err := svc.History.Download(ctx, fs.Arg(0), format, *dir)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runTranslate(ctx context.Context, settings domain.Settings, args []string) error {
	if len(args) != 2 {
		return errors.New("translate needs a job id and a language")
	}
	svc, err := connect(ctx, settings, log.Printf)
	if err != nil {
		return err
	}
	defer svc.Close()

	est, err := svc.Translate(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("translation to %s requested for %s (%.1f credits)\n", args[1], args[0], est.CostCredits)
	return nil
}

func runDoctor(ctx context.Context, settings domain.Settings) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report := diagnostics.NewChecker().Run(ctx, settings)
	for _, item := range report.Items {
		fmt.Printf("[%s] %s: %s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status == domain.DiagnosticStatusFail {
			fmt.Printf("       %s\n", item.Hint)
		}
	}
	if report.HasFailures {
		return fmt.Errorf("%d check(s) failed", len(report.Failed()))
	}
	return nil
}

func printRows(w io.Writer, rows []history.Row) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tLANG\tFILE")
	for _, row := range rows {
		created := "-"
		if !row.CreatedAt.IsZero() {
			created = row.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		status := string(row.Status)
		if row.Progress != "" && row.Badge == history.BadgeWorking {
			status += " (" + row.Progress + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.ID, status, created, lo.Ternary(row.DetectedLanguage != "", row.DetectedLanguage, "-"), row.Filename)
	}
	_ = tw.Flush()
}
