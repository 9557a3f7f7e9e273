package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrender/internal/repository"
)

type check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// newDoctorCmd checks the renderers, the artifact root and the optional backends.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check renderers, the artifact root, the journal and the lease backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var checks []check

			for _, bin := range []string{cfg.Render.Soffice, cfg.Render.Magick} {
				p, err := exec.LookPath(bin)
				checks = append(checks, result("renderer "+bin, p, err))
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				checks = append(checks, result("backends", "", err))
				return report(checks)
			}
			defer a.close(context.Background())

			checks = append(checks, result("artifact root", a.store.Root(), writable(a.store.Root())))

			if a.db != nil {
				err := repository.HealthCheck(ctx, a.db, 3*time.Second, logger)
				checks = append(checks, result("journal "+string(a.db.Dialect), "ping", err))
				if err == nil {
					recent, err := a.attempts.List(ctx, repository.AttemptFilter{Since: time.Now().Add(-24 * time.Hour)})
					checks = append(checks, result("journal attempts (24h)", fmt.Sprint(len(recent)), err))
				}
			} else {
				checks = append(checks, check{Name: "journal", OK: true, Detail: "disabled"})
			}

			if a.locker != nil {
				checks = append(checks, check{Name: "redis lease", OK: true, Detail: cfg.Redis.Addr})
			} else {
				checks = append(checks, check{Name: "redis lease", OK: true, Detail: "disabled, in-process exclusion only"})
			}
			return report(checks)
		},
	}
}

func result(name, detail string, err error) check {
	if err != nil {
		return check{Name: name, Detail: err.Error()}
	}
	return check{Name: name, OK: true, Detail: detail}
}

func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func report(checks []check) error {
	failed := 0
	for _, c := range checks {
		if !c.OK {
			failed++
		}
	}
	if outputJSON {
		if err := printJSON(checks); err != nil {
			return err
		}
	} else {
		for _, c := range checks {
			if c.OK {
				success("%s: %s", c.Name, c.Detail)
			} else {
				warn("%s: %s", c.Name, c.Detail)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}
