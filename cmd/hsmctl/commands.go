package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/hsm-core/internal/archive"
	"github.com/nerrad567/hsm-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hsm-core/internal/journal"
	"github.com/nerrad567/hsm-core/migrations"
)

// newRootCmd builds the command tree. Output goes to stdout and
// diagnostics to stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &options{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "hsmctl",
		Short: "Manage the HSM archive lifecycle of Lustre files",
		Long: `hsmctl registers files for archiving, releases their disk copies,
recalls them from tape and reports their HSM state.

Configuration is read from --config, $HSMCORE_CONFIG, configs/config.yaml
or /etc/hsm-core/config.yaml, in that order. When the variable named by
--env is set, the configuration section it names is merged over the file.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "configuration file")
	root.PersistentFlags().StringVar(&o.envVar, "env", defaultEnvSelector,
		"environment variable selecting a configuration section")

	root.AddCommand(
		newStateCmd(o),
		newRegisterCmd(o),
		newReleaseCmd(o),
		newRecallCmd(o),
		newArchiveDirCmd(o),
		newConfigCmd(o),
		newJournalCmd(o),
		newEventsCmd(o),
	)
	return root
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(cmd *cobra.Command, o *options, withSinks bool, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, o, withSinks)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// =============================================================================
// Archive lifecycle
// =============================================================================

func newStateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "state <path>...",
		Short: "Show the HSM state of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, false, func(ctx context.Context, a *app) error {
				var errs []error
				for _, path := range args {
					st, err := a.manager.Status(ctx, path)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintln(o.stdout, formatStatus(st))
				}
				return errors.Join(errs...)
			})
		},
	}
}

func formatStatus(st archive.Status) string {
	if len(st.States) == 0 {
		return st.Path + ": unregistered"
	}
	states := make([]string, len(st.States))
	for i, s := range st.States {
		states[i] = string(s)
	}
	line := st.Path + ": " + strings.Join(states, " ")
	if st.ArchiveID != "" {
		line += " (archive " + st.ArchiveID + ")"
	}
	return line
}

func newRegisterCmd(o *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "register <path>...",
		Short: "Register files for archiving",
		Long: `Register files for archiving. A registration that does not take is
retried once after archive.retry_delay unless --strict is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, true, func(ctx context.Context, a *app) error {
				register := a.manager.Register
				if strict {
					register = a.manager.RegisterStrict
				}
				var errs []error
				for _, path := range args {
					if err := register(ctx, path); err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(o.stdout, "%s: registered\n", path)
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail without retrying")
	return cmd
}

func newReleaseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "release <path>...",
		Short: "Free the disk copy of archived files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, true, func(ctx context.Context, a *app) error {
				return transition(ctx, o.stdout, args, "released", a.manager.Release)
			})
		},
	}
}

func newRecallCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recall <path>...",
		Short: "Restore released files from tape",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, true, func(ctx context.Context, a *app) error {
				return transition(ctx, o.stdout, args, "recall requested", a.manager.Recall)
			})
		},
	}
}

// transition applies op to every path. A path op reports as not done is an
// error, so the exit status reflects it.
func transition(ctx context.Context, w io.Writer, paths []string, done string,
	op func(ctx context.Context, path string) (bool, error),
) error {
	var errs []error
	for _, path := range paths {
		ok, err := op(ctx, path)
		switch {
		case err != nil:
			errs = append(errs, err)
		case !ok:
			errs = append(errs, fmt.Errorf("%s: not %s", path, done))
		default:
			fmt.Fprintf(w, "%s: %s\n", path, done)
		}
	}
	return errors.Join(errs...)
}

func newArchiveDirCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "archive-dir <root>",
		Short: "Register every regular file below a directory",
		Long: `Register every regular file below a directory. Every file is attempted
even after a failure; symbolic links are not followed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			return withApp(cmd, o, true, func(ctx context.Context, a *app) error {
				a.watchLogging(ctx)

				start := time.Now()
				rep := a.manager.ArchiveDirectory(ctx, root)
				if a.influx != nil {
					a.influx.RecordWalk(root, rep, time.Since(start))
					a.influx.Flush()
				}

				for _, f := range rep.WalkErrors {
					fmt.Fprintf(o.stdout, "SKIPPED %s: %v\n", f.Path, f.Err)
				}
				for _, f := range rep.Failures {
					fmt.Fprintf(o.stdout, "FAILED %s: %v\n", f.Path, f.Err)
				}
				fmt.Fprintf(o.stdout, "%d attempted, %d failed", rep.Attempted, len(rep.Failures))
				if n := len(rep.WalkErrors); n > 0 {
					fmt.Fprintf(o.stdout, ", %d skipped", n)
				}
				fmt.Fprintln(o.stdout)

				switch {
				case len(rep.Failures) > 0:
					return fmt.Errorf("%d of %d files under %s not registered",
						len(rep.Failures), rep.Attempted, root)
				case !rep.OK():
					return fmt.Errorf("%d entries under %s could not be walked", len(rep.WalkErrors), root)
				}
				return nil
			})
		},
	}
}

// =============================================================================
// Configuration
// =============================================================================

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the loaded configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a top-level configuration key",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				reg, err := o.loadRegistry()
				if err != nil {
					return err
				}
				if !reg.Has(args[0]) {
					return fmt.Errorf("%q is not set", args[0])
				}
				return printYAML(o.stdout, reg.Get(args[0], nil))
			},
		},
		&cobra.Command{
			Use:   "query <a.b.c>",
			Short: "Print the value at a dotted path",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				reg, err := o.loadRegistry()
				if err != nil {
					return err
				}
				v, ok := reg.Lookup(strings.Split(args[0], ".")...)
				if !ok {
					return fmt.Errorf("%q is not set", args[0])
				}
				return printYAML(o.stdout, v.Interface())
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the path of the loaded configuration file",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				reg, err := o.loadRegistry()
				if err != nil {
					return err
				}
				fmt.Fprintln(o.stdout, reg.Path())
				return nil
			},
		},
	)
	return cmd
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	return enc.Close()
}

// =============================================================================
// Journal
// =============================================================================

func newJournalCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Review journalled archive operations",
	}

	var (
		filter journal.Filter
		op     string
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List journalled operations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if op != "" {
				switch archive.Op(op) {
				case archive.OpRegister, archive.OpRelease, archive.OpRecall:
					filter.Op = archive.Op(op)
				default:
					return fmt.Errorf("unknown operation %q: want register, release or recall", op)
				}
			}
			return withApp(cmd, o, false, func(ctx context.Context, a *app) error {
				if !a.cfg.Journal.Enabled {
					return errors.New("journal is disabled (journal.enabled is false)")
				}
				j, err := a.openJournal(ctx)
				if err != nil {
					return err
				}
				res, err := j.List(ctx, filter)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(o.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				return printEntries(o.stdout, res)
			})
		},
	}
	list.Flags().StringVar(&op, "op", "", "only this operation: register, release or recall")
	list.Flags().StringVar(&filter.Path, "path", "", "only this exact path")
	list.Flags().StringVar(&filter.PathPrefix, "prefix", "", "only paths below this directory")
	list.Flags().BoolVar(&filter.FailedOnly, "failed", false, "only failed operations")
	list.Flags().IntVar(&filter.Limit, "limit", 0, "page size (default 50, max 500)")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "entries to skip")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(list, newJournalMigrateCmd(o))
	return cmd
}

func newJournalMigrateCmd(o *options) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending journal migrations and show the schema state",
		Long: `Apply pending journal migrations and show the schema state. With
--down the most recent migration is rolled back instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, o, false, func(ctx context.Context, a *app) error {
				if !a.cfg.Journal.Enabled {
					return errors.New("journal is disabled (journal.enabled is false)")
				}
				db, err := a.openJournalDB(ctx)
				if err != nil {
					return err
				}

				if down {
					m, err := db.MigrateDown(ctx, migrations.FS)
					if err != nil {
						return fmt.Errorf("rolling back journal: %w", err)
					}
					if m != nil {
						fmt.Fprintf(o.stdout, "rolled back %s %s\n", m.Version, m.Name)
					}
				} else if err := db.Migrate(ctx, migrations.FS); err != nil {
					return fmt.Errorf("migrating journal: %w", err)
				}

				applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
				if err != nil {
					return err
				}
				for _, r := range applied {
					fmt.Fprintf(o.stdout, "applied %s (%s)\n", r.Version, r.AppliedAt.Local().Format(time.DateTime))
				}
				for _, m := range pending {
					fmt.Fprintf(o.stdout, "pending %s %s\n", m.Version, m.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

func printEntries(w io.Writer, res *journal.ListResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOP\tPATH\tRESULT\tATTEMPTS\tDURATION\tERROR")
	for _, e := range res.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime), e.Op, e.Path, outcome(e.Success, e.Changed),
			e.Attempts, e.Duration, e.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d entries\n", len(res.Entries), res.Total)
	return nil
}

// =============================================================================
// Events
// =============================================================================

func newEventsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Follow archive events published over MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, o, false, func(ctx context.Context, a *app) error {
				if !a.cfg.MQTT.Enabled {
					return errors.New("mqtt is disabled (mqtt.enabled is false)")
				}
				client, err := a.connectMQTT()
				if err != nil {
					return err
				}

				topic := client.Topics().AllArchiveEvents()
				err = client.Subscribe(ctx, topic, byte(a.cfg.MQTT.QoS), func(_ string, payload []byte) error {
					ev, err := mqtt.DecodeEventMessage(payload)
					if err != nil {
						return err
					}
					fmt.Fprintln(o.stdout, formatEventMessage(ev))
					return nil
				})
				if err != nil {
					return err
				}
				a.log.Info("following archive events", "topic", topic)
				a.watchLogging(ctx)

				<-ctx.Done()
				return nil
			})
		},
	}
}

func formatEventMessage(ev mqtt.EventMessage) string {
	line := fmt.Sprintf("%s %s %s %s attempts=%d duration=%dms %s",
		ev.Timestamp.Local().Format(time.DateTime), ev.ClientID, ev.Op, ev.Path,
		ev.Attempts, ev.DurationMS, outcome(ev.Success, ev.Changed))
	if ev.Error != "" {
		line += ": " + ev.Error
	}
	return line
}

func outcome(success, changed bool) string {
	switch {
	case !success:
		return "failed"
	case !changed:
		return "unchanged"
	default:
		return "ok"
	}
}
