/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command bao-mount enables OpenBao auth methods and secrets engines, either
// from a plan file or through the console API it serves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/config"
	"github.com/dc-tec/openbao-console/internal/constants"
	"github.com/dc-tec/openbao-console/internal/effect"
	operrors "github.com/dc-tec/openbao-console/internal/errors"
	"github.com/dc-tec/openbao-console/internal/journal"
	"github.com/dc-tec/openbao-console/internal/mount"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/server"
	"github.com/dc-tec/openbao-console/internal/session"
	"github.com/dc-tec/openbao-console/internal/storage"
)

const (
	// Exit codes
	exitSuccess      = 0
	exitFailure      = 1
	exitConfigError  = 2
	exitMountFailure = 3
)

const validCommands = "catalog, render, apply, serve"

// errMountsFailed is returned by apply when OpenBao rejected at least one mount.
var errMountsFailed = errors.New("one or more mounts failed")

type app struct {
	stdout io.Writer
	lookup config.LookupFunc
	logger logr.Logger

	healthInterval time.Duration
	healthTimeout  time.Duration
}

func run(ctx context.Context, args []string, stdout io.Writer, lookup config.LookupFunc) error {
	global := flag.NewFlagSet("bao-mount", flag.ContinueOnError)
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(global)
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		return fmt.Errorf("missing command (valid commands: %s)", validCommands)
	}

	logger := zap.New(zap.UseFlagOptions(&opts))
	ctrl.SetLogger(logger)

	a := &app{
		stdout:         stdout,
		lookup:         lookup,
		logger:         logger,
		healthInterval: constants.HealthPollInterval,
		healthTimeout:  constants.HealthWaitTimeout,
	}

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "catalog":
		return a.runCatalog(cmdArgs)
	case "render":
		return a.runRender(cmdArgs)
	case "apply":
		return a.runApply(ctx, cmdArgs)
	case "serve":
		return a.runServe(ctx, cmdArgs)
	default:
		return fmt.Errorf("unknown command %q (valid commands: %s)", command, validCommands)
	}
}

func (a *app) runCatalog(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	category := fs.String("category", "", "only list one category: auth or secret")
	enterprise := fs.Bool("enterprise", false, "include enterprise-only types")
	all := fs.Bool("all", false, "include types OpenBao mounts on its own")
	if err := fs.Parse(args); err != nil {
		return err
	}

	categories := []catalog.Category{catalog.CategoryAuth, catalog.CategorySecret}
	if *category != "" {
		c, err := catalog.ParseCategory(*category)
		if err != nil {
			return operrors.WrapPermanentConfig(err)
		}
		categories = []catalog.Category{c}
	}

	cat := catalog.Default()
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CATEGORY\tTYPE\tNAME\tWIF\tENTERPRISE")
	for _, c := range categories {
		types := cat.Pickable(c, *enterprise)
		if *all {
			types = cat.FilterByCategory(c, *enterprise)
		}
		for _, d := range types {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", d.Category, d.Type, d.DisplayName, d.IsWIF, d.IsEnterpriseOnly)
		}
	}
	return tw.Flush()
}

func (a *app) runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	planPath := fs.String("plan", "", "path to the mount plan (required)")
	enterprise := fs.Bool("enterprise", false, "allow enterprise-only types")
	outPath := fs.String("out", "", "write the initialize blocks to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *planPath == "" {
		return operrors.WrapPermanentConfig(fmt.Errorf("-plan is required"))
	}

	drafts, err := loadDrafts(*planPath, *enterprise)
	if err != nil {
		return err
	}
	rendered, err := config.RenderSelfInitHCL(drafts)
	if err != nil {
		return fmt.Errorf("failed to render self-init blocks: %w", err)
	}

	if *outPath == "" {
		_, err = a.stdout.Write(rendered)
		return err
	}
	if err := os.WriteFile(*outPath, rendered, 0o644); err != nil { // #nosec G306 -- self-init blocks carry no secrets
		return fmt.Errorf("failed to write %s: %w", *outPath, err)
	}
	return nil
}

func loadDrafts(planPath string, enterprise bool) ([]mount.Draft, error) {
	plan, err := config.LoadPlan(planPath)
	if err != nil {
		return nil, err
	}
	return plan.Drafts(catalog.Default(), enterprise)
}

func (a *app) runApply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the console configuration (required)")
	planPath := fs.String("plan", "", "path to the mount plan (required)")
	dryRun := fs.Bool("dry-run", false, "print what would be enabled without contacting OpenBao")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" || *planPath == "" {
		return operrors.WrapPermanentConfig(fmt.Errorf("-config and -plan are required"))
	}

	cfg, err := config.LoadConsole(*configPath, a.lookup)
	if err != nil {
		return err
	}
	drafts, err := loadDrafts(*planPath, cfg.Enterprise)
	if err != nil {
		return err
	}

	if *dryRun {
		for _, d := range drafts {
			_, _ = fmt.Fprintf(a.stdout, "would enable %s %s at %s\n", d.Category().Noun(), d.Type(), d.Path())
		}
		return nil
	}

	client, manager, err := a.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	j, closeJournal, err := a.openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	failed := 0
	for i := range drafts {
		d := drafts[i]
		wf := mount.NewWorkflow(client, d.Category(), mount.Options{
			Enterprise: cfg.Enterprise,
			Logger:     a.logger.WithName("apply"),
			Journal:    j,
			Draft:      &d,
		})
		res, err := wf.Submit(ctx)
		if err != nil {
			return fmt.Errorf("failed to submit %s %s: %w", d.Type(), d.Path(), err)
		}
		if !res.Outcome.Success {
			failed++
			_, _ = fmt.Fprintf(a.stdout, "failed  %s %s at %s: %s\n", d.Category().Noun(), d.Type(), d.Path(), res.Outcome.Detail)
			continue
		}
		_, _ = fmt.Fprintf(a.stdout, "enabled %s %s at %s\n", d.Category().Noun(), d.Type(), res.Outcome.Path)
		for _, n := range effect.Notifications(res.Effects) {
			if n.Level == effect.LevelInfo {
				_, _ = fmt.Fprintf(a.stdout, "  note: %s\n", n.Message)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errMountsFailed, failed, len(drafts))
	}
	return nil
}

func (a *app) runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the console configuration (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return operrors.WrapPermanentConfig(fmt.Errorf("-config is required"))
	}

	cfg, err := config.LoadConsole(*configPath, a.lookup)
	if err != nil {
		return err
	}
	client, manager, err := a.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	j, closeJournal, err := a.openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	store := session.NewStore(func(category catalog.Category) *mount.Workflow {
		return mount.NewWorkflow(client, category, mount.Options{
			Enterprise: cfg.Enterprise,
			Logger:     a.logger.WithName("workflow"),
			Journal:    j,
		})
	}, session.Options{
		MaxDrafts:   cfg.MaxDrafts(),
		IdleTimeout: cfg.SessionIdleTimeout(),
		Logger:      a.logger.WithName("sessions"),
	})

	var tasks []session.Task
	if policy := cfg.RetentionPolicy(); !policy.IsZero() {
		tasks = append(tasks, retentionTask(j, policy, a.logger.WithName("retention")))
	}
	sweeper, err := session.NewSweeper(store, cfg.SweepSchedule(), a.logger.WithName("sweeper"), tasks...)
	if err != nil {
		return operrors.WrapPermanentConfig(err)
	}

	srv := server.New(store, client, server.Options{
		Enterprise: cfg.Enterprise,
		Journal:    j,
		Health:     client,
		Logger:     a.logger.WithName("server"),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sweepDone := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(sweepDone)
	}()

	err = srv.ListenAndServe(ctx, cfg.Listen())
	cancel()
	<-sweepDone
	return err
}

// retentionTask prunes archived journal entries on every sweep.
func retentionTask(j *journal.Journal, policy journal.RetentionPolicy, logger logr.Logger) session.Task {
	return func(ctx context.Context) error {
		res, err := j.ApplyRetention(ctx, policy)
		if err != nil {
			return fmt.Errorf("failed to apply journal retention: %w", err)
		}
		if res.Deleted() > 0 {
			logger.Info("Pruned journal archive",
				"total", res.Total,
				"deleted_by_count", res.DeletedByCount,
				"deleted_by_age", res.DeletedByAge,
			)
		}
		return nil
	}
}

// connect waits for OpenBao to be initialized and unsealed, then returns an
// authenticated client. The manager must be closed by the caller.
func (a *app) connect(ctx context.Context, cfg *config.Console) (*openbao.Client, *openbao.ClientManager, error) {
	caCert, err := cfg.CACert()
	if err != nil {
		return nil, nil, err
	}

	manager := openbao.NewClientManager(cfg.OpenBaoClientConfig())
	factory := manager.FactoryFor(cfg.ServerKey(), caCert)

	probe, err := factory.New(cfg.Address)
	if err != nil {
		manager.Close()
		return nil, nil, fmt.Errorf("failed to create OpenBao client: %w", err)
	}
	if err := waitForHealthy(ctx, probe, a.logger, a.healthInterval, a.healthTimeout); err != nil {
		manager.Close()
		return nil, nil, err
	}

	var client *openbao.Client
	switch cfg.AuthMethod() {
	case constants.AuthMethodJWT:
		mountPath, role, jwt, jerr := cfg.JWTLogin()
		if jerr != nil {
			manager.Close()
			return nil, nil, jerr
		}
		client, err = factory.NewWithJWT(ctx, cfg.Address, mountPath, role, jwt)
	default:
		token, terr := cfg.Token()
		if terr != nil {
			manager.Close()
			return nil, nil, terr
		}
		if token == "" {
			a.logger.Info("No token configured; mount requests will be rejected")
		}
		client, err = factory.NewWithToken(cfg.Address, token)
	}
	if err != nil {
		manager.Close()
		return nil, nil, fmt.Errorf("failed to authenticate to OpenBao: %w", err)
	}
	a.logger.Info("Connected to OpenBao", "address", cfg.Address, "auth_method", cfg.AuthMethod())
	return client, manager, nil
}

func waitForHealthy(ctx context.Context, checker openbao.HealthChecker, logger logr.Logger, interval, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		healthy, err := checker.IsHealthy(ctx)
		if err != nil {
			logger.V(1).Info("OpenBao is not reachable yet", "error", err.Error())
			return false, nil
		}
		if !healthy {
			logger.Info("Waiting for OpenBao to be initialized and unsealed")
		}
		return healthy, nil
	})
	if err != nil {
		return fmt.Errorf("OpenBao did not become healthy: %w", err)
	}
	return nil
}

// openJournal opens the archive named by the journal block. Without one the
// journal only keeps recent entries in memory.
func (a *app) openJournal(ctx context.Context, cfg *config.Console) (*journal.Journal, func(), error) {
	opts := journal.Options{
		Prefix: cfg.JournalPrefix(),
		Logger: a.logger.WithName("journal"),
	}

	creds, err := storage.LoadCredentials(storage.LookupFunc(a.lookup))
	if err != nil {
		return nil, nil, operrors.WrapPermanentConfig(err)
	}
	storeCfg := cfg.StorageConfig(creds)
	if storeCfg == nil {
		return journal.New(nil, opts), func() {}, nil
	}

	store, err := storage.OpenBlobStore(ctx, *storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal storage: %w", err)
	}
	return journal.New(store, opts), func() { _ = store.Close() }, nil
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitSuccess
	case errors.Is(err, errMountsFailed):
		return exitMountFailure
	case operrors.IsPermanent(err):
		return exitConfigError
	default:
		return exitFailure
	}
}

func main() {
	ctx := ctrl.SetupSignalHandler()
	err := run(ctx, os.Args[1:], os.Stdout, os.LookupEnv)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		_, _ = fmt.Fprintf(os.Stderr, "bao-mount error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
