package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/pharm/internal/apperr"
	"github.com/stellarlinkco/pharm/internal/cabinet"
	"github.com/stellarlinkco/pharm/internal/config"
	"github.com/stellarlinkco/pharm/internal/daemon"
	"github.com/stellarlinkco/pharm/internal/medication"
	"github.com/stellarlinkco/pharm/internal/notify"
	"github.com/stellarlinkco/pharm/internal/schedule"
)

func (a *app) addCmd() *cobra.Command {
	var dose, at, freq, notes string
	cmd := &cobra.Command{
		Use:     "add NAME",
		Aliases: []string{"a", "ad"},
		Short:   "Add a new medication, or restore an archived one",
		Args:    nameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			tod, f, err := schedule.ParseSchedule(at, freq)
			if err != nil {
				return err
			}
			m, unarchived, err := a.svc.Add(cmd.Context(), medication.NewMedication{
				Name:          args[0],
				Dose:          dose,
				ScheduledTime: tod,
				Frequency:     f,
				Notes:         notes,
			})
			if err != nil {
				return err
			}
			return a.printer().added(m, unarchived)
		},
	}
	cmd.Flags().StringVarP(&dose, "dose", "d", "", `Dosage (e.g. "500mg", "10ml")`)
	cmd.Flags().StringVarP(&at, "time", "t", "", `Time to take (e.g. "8:00", "08:30", "8", "morning", "bedtime")`)
	cmd.Flags().StringVarP(&freq, "freq", "f", "daily", `How often (e.g. "daily", "weekly", "every 3 days", "as needed")`)
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Optional notes")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"r"},
		Short:   "Archive a medication, keeping its history",
		Args:    nameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.svc.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer().removed(m)
		},
	}
}

func (a *app) takeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "take NAME",
		Aliases: []string{"t"},
		Short:   "Record a dose now",
		Args:    nameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ev, err := a.svc.Take(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer().dose("taken", m, ev)
		},
	}
}

func (a *app) untakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "untake NAME",
		Aliases: []string{"u"},
		Short:   "Undo the most recent dose",
		Args:    nameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ev, err := a.svc.Untake(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer().dose("untaken", m, ev)
		},
	}
}

func (a *app) takeAllCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "take-all",
		Aliases: []string{"ta"},
		Short:   "Record a dose of every scheduled medication",
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.TakeAll(cmd.Context(), force)
			if err != nil {
				return err
			}
			return a.printer().takeAll(res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Also record medications already taken for this interval")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var dose, at, freq, notes string
	cmd := &cobra.Command{
		Use:     "edit NAME",
		Aliases: []string{"e"},
		Short:   "Change a medication's dose, time, frequency or notes",
		Args:    nameArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				c       medication.Changes
				changes []string
			)
			flags := cmd.Flags()
			if flags.Changed("dose") {
				c.Dose = &dose
				changes = append(changes, "dose -> "+strings.TrimSpace(dose))
			}
			if flags.Changed("time") {
				tod, err := schedule.ParseTime(at)
				if err != nil {
					return err
				}
				c.ScheduledTime = &tod
				changes = append(changes, "time -> "+tod.String())
			}
			if flags.Changed("freq") {
				f, err := schedule.ParseFrequency(freq)
				if err != nil {
					return err
				}
				c.Frequency = &f
				changes = append(changes, "frequency -> "+f.String())
			}
			if flags.Changed("notes") {
				c.Notes = &notes
				if strings.TrimSpace(notes) == "" {
					changes = append(changes, "notes cleared")
				} else {
					changes = append(changes, "notes -> "+strings.TrimSpace(notes))
				}
			}

			m, err := a.svc.Edit(cmd.Context(), args[0], c)
			if err != nil {
				return err
			}
			return a.printer().edited(m, changes)
		},
	}
	cmd.Flags().StringVar(&dose, "dose", "", "New dosage")
	cmd.Flags().StringVar(&at, "time", "", "New time to take")
	cmd.Flags().StringVar(&freq, "freq", "", "New frequency")
	cmd.Flags().StringVar(&notes, "notes", "", "New notes (empty string clears them)")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var opts cabinet.ListOptions
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l", "s", "show"},
		Short:   "List medications",
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Archived && opts.DueOnly {
				return apperr.Validation("list", "--archived and --due cannot be combined")
			}
			entries, err := a.svc.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printer().list(entries, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Archived, "archived", "a", false, "Show archived medications instead of active ones")
	cmd.Flags().BoolVar(&opts.DueOnly, "due", false, "Show only medications due now")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var opts cabinet.HistoryOptions
	cmd := &cobra.Command{
		Use:     "history [NAME]",
		Aliases: []string{"h"},
		Short:   "Show dose history and adherence",
		Args:    optionalName,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Name = args[0]
			}
			reports, err := a.svc.History(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.printer().history(reports, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Days, "days", "d", 0, fmt.Sprintf("Limit to the last N days (adherence defaults to %d)", cabinet.DefaultHistoryDays))
	cmd.Flags().BoolVarP(&opts.Archived, "archived", "a", false, "Show only archived medications")
	return cmd
}

func (a *app) daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "daemon",
		Aliases: []string{"d"},
		Short:   "Run the reminder daemon in the foreground",
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			poll, _ := a.cfg.Daemon.PollEvery()
			overdue, _ := a.cfg.Daemon.OverdueThreshold()

			sink := a.opts.Sink
			if sink == nil {
				sinks, err := notify.FromConfig(a.cfg.Notify, a.logger)
				if err != nil {
					return err
				}
				sink = sinks
			}
			disp := notify.NewDispatcher(sink, a.cfg.Notify.QueueSize, a.logger)

			d, err := daemon.New(daemon.Options{
				Store:        a.store,
				Sink:         disp,
				Logger:       a.logger,
				Now:          a.now,
				PollInterval: poll,
				OverdueAfter: overdue,
				Status:       a.cfg.Daemon.Status,
				SignalChan:   a.opts.SignalChan,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Reminder daemon started, checking every %s (Ctrl+C to stop)\n", poll)
			if a.cfg.Daemon.Status.Enabled {
				fmt.Fprintf(a.stdout, "Status: http://%s/status\n", a.cfg.Daemon.Status.Addr())
			}
			if err := d.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Reminder daemon stopped")
			return nil
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  noArgs,
		// a broken config file must not stop init from reporting it
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.checkFormat() },
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Fprintf(a.stdout, "Config already exists: %s\n", cfgPath)
				return nil
			} else if !os.IsNotExist(err) {
				return apperr.Persistence("init", err)
			}

			if err := config.SaveConfig(config.DefaultConfig()); err != nil {
				return apperr.Persistence("init", err)
			}
			fmt.Fprintf(a.stdout, "Created config: %s\n", cfgPath)
			fmt.Fprintln(a.stdout, "\nNext steps:")
			fmt.Fprintf(a.stdout, "  1. Edit %s to enable Telegram or change the data file\n", cfgPath)
			fmt.Fprintln(a.stdout, `  2. Run 'pharm add Aspirin --dose 500mg --time 08:00' to add a medication`)
			fmt.Fprintln(a.stdout, "  3. Run 'pharm daemon' to get reminders")
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and medication counts",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer().status(config.ConfigPath(), a.cfg, sum)
		},
	}
}
