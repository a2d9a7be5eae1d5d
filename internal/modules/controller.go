package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onramp-hpc/pce/internal/model"
	"github.com/onramp-hpc/pce/internal/scheduler"
	"github.com/onramp-hpc/pce/internal/store"
)

// deployHook is the optional per-module setup script run during deploy.
const deployHook = "bin/onramp_deploy.py"

// Dispatcher schedules controller work units off the request path.
type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context))
}

// Controller drives module instances through checkout and deploy. Checkout
// and Deploy return immediately with an acknowledgement envelope; the actual
// filesystem work runs on the dispatcher and lands its outcome in the module
// record.
type Controller struct {
	locker        *store.Locker
	dispatch      Dispatcher
	fetch         Fetcher
	run           scheduler.CommandRunner
	moduleRoot    string
	availableRoot string
	logger        *slog.Logger
}

// NewController creates a module controller. availableRoot is the source
// catalogue scanned by Available. fetch and run may be nil, in which case
// FetchLocal and scheduler.ExecRunner are used.
func NewController(locker *store.Locker, dispatch Dispatcher, moduleRoot, availableRoot string, fetch Fetcher, run scheduler.CommandRunner, logger *slog.Logger) *Controller {
	if fetch == nil {
		fetch = FetchLocal
	}
	if run == nil {
		run = scheduler.ExecRunner
	}
	return &Controller{
		locker:        locker,
		dispatch:      dispatch,
		fetch:         fetch,
		run:           run,
		moduleRoot:    moduleRoot,
		availableRoot: availableRoot,
		logger:        logger,
	}
}

// Checkout validates the source location, persists the module in state
// "Checking out" and schedules the asynchronous fetch. Calling it again for
// an id that is mid-flight or terminal restarts the state machine from the
// top with the new name and source.
func (c *Controller) Checkout(ctx context.Context, id int, name string, src model.SourceLocation) (model.Result, error) {
	if src.Kind != model.SourceKindLocal {
		return model.Result{
			Code:    model.CodeInvalidInput,
			Message: fmt.Sprintf("Unknown source location kind %q", src.Kind),
		}, nil
	}

	err := c.locker.WithModule(ctx, id, func(m *model.Module) error {
		m.Name = name
		m.Source = src
		m.State = model.ModuleCheckingOut
		m.InstalledPath = ""
		m.Error = ""
		return nil
	})
	if err != nil {
		return model.Result{}, err
	}

	c.dispatch.Submit("module-checkout", func(ctx context.Context) {
		c.doCheckout(ctx, id, name, src)
	})

	return model.Accepted("Checkout initiated"), nil
}

// doCheckout performs the fetch under the module's lock so a concurrent
// re-checkout of the same id cannot interleave with this one's writes.
func (c *Controller) doCheckout(ctx context.Context, id int, name string, src model.SourceLocation) {
	err := c.locker.WithModule(ctx, id, func(m *model.Module) error {
		dest := c.installDir(name, id)

		if err := os.RemoveAll(dest); err != nil {
			c.failCheckout(m, fmt.Sprintf("clean install dir: %v", err))
			return nil
		}
		if err := c.fetch(src, dest); err != nil {
			c.failCheckout(m, err.Error())
			return nil
		}

		m.State = model.ModuleInstalled
		m.InstalledPath = dest
		m.Error = ""
		return nil
	})
	if err != nil {
		c.logger.Error("persist checkout outcome", "module_id", id, "error", err)
	}
}

// Deploy persists the module in state "Deploying" and schedules the module's
// deploy hook. Deploying an already-ready module repeats the deploy step; the
// hook contract requires it to be safe to run twice.
func (c *Controller) Deploy(ctx context.Context, id int) (model.Result, error) {
	m, err := c.locker.Store().GetModule(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notInstalled(id), nil
	}
	if err != nil {
		return model.Result{}, err
	}
	if !model.ModuleInstalledOrLater(m.State) {
		return notInstalled(id), nil
	}

	err = c.locker.WithModule(ctx, id, func(m *model.Module) error {
		m.State = model.ModuleDeploying
		m.Error = ""
		return nil
	})
	if err != nil {
		return model.Result{}, err
	}

	c.dispatch.Submit("module-deploy", func(ctx context.Context) {
		c.doDeploy(ctx, id)
	})

	return model.Accepted("Deployment initiated"), nil
}

func (c *Controller) doDeploy(ctx context.Context, id int) {
	err := c.locker.WithModule(ctx, id, func(m *model.Module) error {
		if err := RunHook(ctx, c.run, m.InstalledPath, deployHook); err != nil {
			m.State = model.ModuleDeployFailed
			m.Error = err.Error()
			return nil
		}
		m.State = model.ModuleReady
		m.Error = ""
		return nil
	})
	if err != nil {
		c.logger.Error("persist deploy outcome", "module_id", id, "error", err)
	}
}

// installDir returns the install directory unique to (name, id).
func (c *Controller) installDir(name string, id int) string {
	return filepath.Join(c.moduleRoot, fmt.Sprintf("%s_%d", name, id))
}

func (c *Controller) failCheckout(m *model.Module, msg string) {
	m.State = model.ModuleCheckoutFailed
	m.Error = msg
	m.InstalledPath = ""
}

func notInstalled(id int) model.Result {
	return model.Result{
		Code:    model.CodeNotInstalled,
		Message: fmt.Sprintf("Module %d not installed", id),
	}
}
