package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/imamik/hubspoke/internal/provisioning"
	"github.com/imamik/hubspoke/internal/spoke"
)

// newApp builds the application. Replaced in tests.
var newApp = NewApp

// withApp runs fn against a freshly wired application and closes it
// afterwards, giving queued rollbacks up to the deployment timeout.
func withApp(ctx context.Context, opts Options, fn func(*App) error) (err error) {
	app, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.Timeouts.Deployment)
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown: %w", cerr))
		}
	}()
	return fn(app)
}

// CreateOptions describe the spoke to create. File, when set, is a YAML or
// JSON spoke configuration and the remaining fields override it.
type CreateOptions struct {
	File          string
	SpokeID       int
	ClientName    string
	SSHKeyFile    string
	VMSize        string
	AdminUsername string
	Output        string
}

// Configuration builds the requested spoke configuration.
func (o CreateOptions) Configuration() (spoke.Configuration, error) {
	var cfg spoke.Configuration
	if o.File != "" {
		// #nosec G304
		data, err := os.ReadFile(o.File)
		if err != nil {
			return cfg, fmt.Errorf("failed to read spoke file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse spoke file: %w", err)
		}
	}
	if o.SpokeID != 0 {
		cfg.SpokeID = o.SpokeID
	}
	if o.ClientName != "" {
		cfg.ClientName = o.ClientName
	}
	if o.VMSize != "" {
		cfg.VMSize = o.VMSize
	}
	if o.AdminUsername != "" {
		cfg.AdminUsername = o.AdminUsername
	}
	if o.SSHKeyFile != "" {
		// #nosec G304
		key, err := os.ReadFile(o.SSHKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("failed to read ssh public key: %w", err)
		}
		cfg.SSHPublicKey = strings.TrimSpace(string(key))
	}
	return cfg, nil
}

// Create provisions a spoke and prints the resulting record. When the
// workflow fails, it waits for the rollback and prints the final record.
func Create(ctx context.Context, opts Options, create CreateOptions) error {
	req, err := create.Configuration()
	if err != nil {
		return err
	}

	return withApp(ctx, opts, func(app *App) error {
		d, err := app.Orchestrator.Create(ctx, req)
		var derr *provisioning.DeploymentError
		switch {
		case err == nil:
			return printValue(stdout, d, create.Output)
		case errors.As(err, &derr) && derr.RollbackQueued:
			app.Log.Info("deployment failed, waiting for rollback", "spoke_id", derr.SpokeID, "step", string(derr.Step))
			final, werr := app.settle(ctx, req.SpokeID)
			if werr != nil {
				return errors.Join(err, werr)
			}
			return errors.Join(err, printValue(stdout, final, create.Output))
		default:
			if d != nil {
				_ = printValue(stdout, d, create.Output)
			}
			return err
		}
	})
}

// settle waits for every queued rollback and returns the record of spokeID.
func (a *App) settle(ctx context.Context, spokeID int) (*spoke.Deployment, error) {
	drainCtx, cancel := context.WithTimeout(ctx, a.Config.Timeouts.Deployment)
	defer cancel()
	if err := a.Queue.Stop(drainCtx); err != nil {
		return nil, fmt.Errorf("rollback did not finish: %w", err)
	}
	return a.Orchestrator.Get(context.WithoutCancel(ctx), spokeID)
}

// Status prints the stored record and the live provider view of a spoke.
func Status(ctx context.Context, opts Options, spokeID int, output string) error {
	return withApp(ctx, opts, func(app *App) error {
		st, err := app.Orchestrator.Status(ctx, spokeID)
		if err != nil {
			return err
		}
		return printValue(stdout, st, output)
	})
}

// List prints the stored records, optionally filtered by status.
func List(ctx context.Context, opts Options, status string, limit int, output string) error {
	return withApp(ctx, opts, func(app *App) error {
		ds, err := app.Orchestrator.List(ctx, provisioning.ListFilter{Status: spoke.Status(status), Limit: limit})
		if err != nil {
			return err
		}
		if output == "" {
			printTable(ds)
			return nil
		}
		return printValue(stdout, ds, output)
	})
}

func printTable(ds []*spoke.Deployment) {
	fmt.Fprintf(stdout, "%-6s %-20s %-16s %-18s %-9s %s\n", "SPOKE", "CLIENT", "STATUS", "ADDRESS", "PROGRESS", "UPDATED")
	for _, d := range ds {
		fmt.Fprintf(stdout, "%-6d %-20s %-16s %-18s %-9s %s\n",
			d.SpokeID, d.ClientName, d.Status, d.Config.AddressPrefix,
			fmt.Sprintf("%.0f%%", d.Progress()), d.UpdatedAt.Format(time.RFC3339))
	}
}

// Delete tears a spoke down and waits for the teardown to finish. With
// purge, the record of a settled spoke is removed instead.
func Delete(ctx context.Context, opts Options, spokeID int, purge bool, output string) error {
	if purge {
		return withApp(ctx, opts, func(app *App) error {
			if err := app.Orchestrator.Purge(ctx, spokeID); err != nil {
				return err
			}
			app.Log.Info("spoke record purged", "spoke_id", spokeID)
			return nil
		})
	}

	return withApp(ctx, opts, func(app *App) error {
		if _, err := app.Orchestrator.Delete(ctx, spokeID); err != nil {
			return err
		}
		d, err := app.settle(ctx, spokeID)
		if err != nil {
			return err
		}
		if err := printValue(stdout, d, output); err != nil {
			return err
		}
		if d.Status == spoke.StatusRollbackFailed {
			return fmt.Errorf("teardown of spoke %d failed: %s", spokeID, strings.Join(d.RollbackErrors, "; "))
		}
		return nil
	})
}
