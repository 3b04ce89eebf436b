package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/journal"
	"github.com/dc-tec/openbao-console/internal/logging"
	"github.com/dc-tec/openbao-console/internal/metrics"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/validation"
)

// ErrUnknownType rejects a type that is not pickable for the draft's category.
var ErrUnknownType = errors.New("unknown backend type")

// Journal receives one entry per finished submit.
type Journal interface {
	Append(ctx context.Context, entry journal.Entry) error
}

// Options configures a Workflow.
type Options struct {
	// Catalog defaults to catalog.Default().
	Catalog *catalog.Catalog
	// Enterprise makes enterprise-only types pickable.
	Enterprise bool
	Logger     logr.Logger
	// Journal is optional.
	Journal Journal
	// OnSuccess is invoked exactly once, after the mount is enabled.
	OnSuccess func(mountType, path string)
	// Draft seeds the workflow instead of a fresh draft. It is ignored unless it
	// belongs to the workflow's category and is selecting or configuring.
	Draft *Draft
}

// Result is what a submit produced.
type Result struct {
	Outcome Outcome
	Effects []effect.Effect
	Draft   Draft
}

// Workflow owns one draft and drives it against OpenBao. Methods are safe for
// concurrent use; the draft itself only changes through its transitions.
type Workflow struct {
	api     openbao.API
	catalog *catalog.Catalog
	opts    Options
	logger  logr.Logger
	metrics *metrics.MountMetrics

	mu    sync.Mutex
	draft Draft
}

// NewWorkflow starts a workflow with a fresh draft for category.
func NewWorkflow(api openbao.API, category catalog.Category, opts Options) *Workflow {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	draft := NewDraft(category)
	if seed := opts.Draft; seed != nil && seed.Category() == category &&
		(seed.State() == StateSelecting || seed.State() == StateConfiguring) {
		draft = *seed
	}
	return &Workflow{
		api:     api,
		catalog: cat,
		opts:    opts,
		logger:  opts.Logger.WithValues("category", string(category)),
		metrics: metrics.NewMountMetrics(string(category)),
		draft:   draft,
	}
}

// Draft returns the current draft.
func (w *Workflow) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

func (w *Workflow) apply(fn func(Draft) (Draft, error)) (Draft, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, err := fn(w.draft)
	if err != nil {
		return w.draft, err
	}
	w.draft = next
	return next, nil
}

// Pickable lists the types offered in the picker, filtered by the token's capabilities.
// A failed capability check is logged and the unfiltered list is returned.
func (w *Workflow) Pickable(ctx context.Context) []catalog.Descriptor {
	category := w.Draft().Category()
	types, err := FilterPickable(ctx, w.api, w.catalog, category, w.opts.Enterprise)
	if err != nil {
		w.metrics.RecordCapabilityCheck(metrics.ResultFailure)
		w.logger.Info("Capability check failed; showing all types", "error", err.Error())
		return types
	}
	w.metrics.RecordCapabilityCheck(metrics.ResultSuccess)
	return types
}

// SelectType picks a type by name.
func (w *Workflow) SelectType(typ string) (Draft, error) {
	return w.apply(func(d Draft) (Draft, error) {
		desc, ok := w.lookupPickable(d.Category(), typ)
		if !ok {
			return d, fmt.Errorf("%w: %q is not a %s", ErrUnknownType, typ, d.Category().Noun())
		}
		return d.SelectType(desc)
	})
}

func (w *Workflow) lookupPickable(category catalog.Category, typ string) (catalog.Descriptor, bool) {
	for _, d := range w.catalog.Pickable(category, w.opts.Enterprise) {
		if d.Type == typ {
			return d, true
		}
	}
	return catalog.Descriptor{}, false
}

func (w *Workflow) EditPath(path string) (Draft, error) {
	return w.apply(func(d Draft) (Draft, error) { return d.EditPath(path) })
}

func (w *Workflow) GoBack() (Draft, error) {
	return w.apply(Draft.GoBack)
}

func (w *Workflow) SetDescription(description string) (Draft, error) {
	return w.apply(func(d Draft) (Draft, error) { return d.SetDescription(description) })
}

func (w *Workflow) SetConfig(key string, value any) (Draft, error) {
	return w.apply(func(d Draft) (Draft, error) { return d.SetConfig(key, value) })
}

func (w *Workflow) SetOption(key string, value any) (Draft, error) {
	return w.apply(func(d Draft) (Draft, error) { return d.SetOption(key, value) })
}

func (w *Workflow) SetKVConfig(key string, value any) (Draft, error) {
	return w.apply(func(d Draft) (Draft, error) { return d.SetKVConfig(key, value) })
}

// Submit sends the draft to OpenBao. Validation problems and a submit already
// in flight are returned as errors without any request being made. Once the
// request is issued it runs to completion even if ctx is cancelled; rejections
// and transport failures are reported through the Result, not the error.
func (w *Workflow) Submit(ctx context.Context) (Result, error) {
	w.mu.Lock()
	submitting, err := w.draft.BeginSubmit()
	if err != nil {
		current := w.draft
		w.mu.Unlock()
		if _, ok := validation.As(err); ok {
			w.metrics.RecordValidationError()
		}
		return Result{Draft: current}, err
	}
	w.draft = submitting
	w.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	mountType := submitting.Type()
	path := submitting.MountPath()
	log := w.logger.WithValues("type", mountType, "path", path)

	req := BuildMountRequest(submitting)
	if submitting.Category() == catalog.CategoryAuth {
		err = w.api.EnableAuthMethod(ctx, path, req)
	} else {
		err = w.api.EnableSecretsEngine(ctx, path, req)
	}

	var (
		outcome Outcome
		extra   []effect.Effect
		result  = metrics.ResultSuccess
	)
	if err != nil {
		kind := openbao.ClassifyFailure(err)
		outcome = Failed(openbao.FailureDetail(err))
		result = metrics.ResultFailure
		log.Error(err, "Failed to enable mount", "failure_kind", string(kind))
		logging.LogAuditEvent(log, logging.EventMountFailed, map[string]string{
			"failure_kind": string(kind),
			"detail":       outcome.Detail,
		})
		w.metrics.RecordSubmission(mountType, result, string(kind), time.Since(start).Seconds())
	} else {
		outcome = Succeeded(path)
		logging.LogAuditEvent(log, logging.EventMountEnabled, nil)
		if body, ok := KVConfigFollowUp(submitting); ok {
			if _, kvErr := w.api.Write(ctx, path+"/config", body); kvErr != nil {
				result = metrics.ResultPartial
				log.Error(kvErr, "Mount enabled but KV configuration was not saved")
				extra = append(extra, effect.Notify(effect.LevelInfo, fmt.Sprintf(
					"The %s secrets engine was mounted at %s, but its configuration was not saved: %s",
					mountType, path, openbao.FailureDetail(kvErr))))
			} else {
				logging.LogAuditEvent(log, logging.EventKVConfigured, nil)
			}
		}
		w.metrics.RecordSubmission(mountType, result, "", time.Since(start).Seconds())
	}

	w.mu.Lock()
	resolved, effects, rerr := w.draft.Resolve(outcome)
	w.draft = resolved
	w.mu.Unlock()
	if rerr != nil {
		return Result{Draft: resolved}, rerr
	}
	effects = append(effects, extra...)

	if w.opts.Journal != nil {
		entry := journal.Entry{
			Category:    string(submitting.Category()),
			Type:        mountType,
			Path:        path,
			Description: submitting.Description(),
			Result:      result,
			Detail:      outcome.Detail,
			FailureKind: string(openbao.ClassifyFailure(err)),
		}
		if jerr := w.opts.Journal.Append(ctx, entry); jerr != nil {
			log.Error(jerr, "Failed to append mount journal entry")
		}
	}

	if outcome.Success && w.opts.OnSuccess != nil {
		w.opts.OnSuccess(mountType, path)
	}

	return Result{Outcome: outcome, Effects: effects, Draft: resolved}, nil
}
