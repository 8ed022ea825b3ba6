package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"festplan/internal/ics"
	"festplan/internal/model"
	"festplan/internal/plan"
	"festplan/internal/reminder"
	"festplan/internal/schedule"
)

func init() {
	// plan
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print my plan grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			byStatus, _ := cmd.Flags().GetBool("by-status")
			return withApp(cmd, func(_ context.Context, a *app) error {
				events := a.catalog.Get().Events()
				groups := schedule.MyPlan(events, a.prefs.Snapshot())
				if byStatus {
					groups = schedule.MyPlanByStatus(events, a.prefs.Snapshot())
				}
				printGroups(cmd.OutOrStdout(), groups)
				return nil
			})
		},
	}
	planCmd.Flags().Bool("by-status", false, "Group by preference level instead of day")
	rootCmd.AddCommand(planCmd)

	// toggle
	rootCmd.AddCommand(&cobra.Command{
		Use:   "toggle EVENT_ID STATUS",
		Short: "Set an event's status (must-see, nice, have); repeating it clears",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := model.ParseStatus(args[1])
			if err != nil || target == model.StatusNone {
				return errors.New("status must be one of must-see, nice, have")
			}
			return withApp(cmd, func(_ context.Context, a *app) error {
				ev, err := a.catalog.Get().Get(args[0])
				if err != nil {
					return err
				}
				next := a.prefs.Toggle(ev.ID, target)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", ev.Name, ev.ID, next)
				return nil
			})
		},
	})

	// export
	var exportName, exportQR string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write my plan as a shareable JSON file (and optionally a QR code)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				fs := plan.Export(exportName, a.prefs.Snapshot(), a.clock.Now())
				data, err := plan.MarshalExport(fs)
				if err != nil {
					return err
				}
				name := plan.ExportFileName(fs.Name)
				if err := os.WriteFile(name, data, 0o644); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
				if exportQR == "" {
					return nil
				}
				png, err := plan.EncodeQR(fs)
				if err != nil {
					return err
				}
				if err := os.WriteFile(exportQR, png, 0o644); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), exportQR)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&exportName, "name", "n", "", "Your name, shown to friends")
	exportCmd.Flags().StringVar(&exportQR, "qr", "", "Also write a QR code PNG to this path")
	rootCmd.AddCommand(exportCmd)

	// import
	rootCmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import a friend's plan from a JSON export or a QR code image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(_ context.Context, a *app) error {
				fs, err := plan.Import(a.friends, data)
				if err != nil {
					return fmt.Errorf("import %s: %w", filepath.Base(args[0]), err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d events)\n", fs.Name, len(fs.Schedule))
				return nil
			})
		},
	})

	// friends
	friendsCmd := &cobra.Command{
		Use:   "friends",
		Short: "List imported friends, or show one friend's plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				friends := a.friends.List()
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					for i, f := range friends {
						_, _ = fmt.Fprintf(out, "%d  %-20s %3d events  exported %s\n", i, f.Name, len(f.Schedule), f.ExportedAt)
					}
					return nil
				}
				i, err := strconv.Atoi(args[0])
				if err != nil || i < 0 || i >= len(friends) {
					return fmt.Errorf("no friend at index %q", args[0])
				}
				printGroups(out, schedule.FriendPlan(a.catalog.Get().Events(), friends[i]))
				return nil
			})
		},
	}
	rootCmd.AddCommand(friendsCmd)

	// ics
	var icsOut string
	icsCmd := &cobra.Command{
		Use:   "ics EVENT_ID",
		Short: "Write a calendar file for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				ev, err := a.catalog.Get().Get(args[0])
				if err != nil {
					return err
				}
				start, err := a.cfg.FestivalStartTime()
				if err != nil {
					return err
				}
				doc, err := ics.GenerateICS(ev, start, a.clock.Now())
				if err != nil {
					return err
				}
				if icsOut == "-" {
					_, err = io.WriteString(cmd.OutOrStdout(), doc)
					return err
				}
				path := icsOut
				if path == "" {
					path = ics.FileName(ev)
				}
				if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
					return err
				}
				link, _ := ics.GoogleCalendarURL(ev, start)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", path, link)
				return nil
			})
		},
	}
	icsCmd.Flags().StringVarP(&icsOut, "out", "o", "", `Output path ("-" for stdout)`)
	rootCmd.AddCommand(icsCmd)

	// remind
	remindCmd := &cobra.Command{
		Use:   "remind EVENT_ID [DATE TIME]",
		Short: "Set a reminder (DATE is YYYY-MM-DD, TIME is HH:MM); serve arms it",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			remove, _ := cmd.Flags().GetBool("clear")
			if !remove && len(args) != 3 {
				return errors.New("DATE and TIME are required unless --clear is set")
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sched := a.scheduler(ctx)
				if remove {
					if !sched.ClearReminder(args[0]) {
						return fmt.Errorf("no reminder for %s", args[0])
					}
					return nil
				}
				ev, err := a.catalog.Get().Get(args[0])
				if err != nil {
					return err
				}
				perm, err := sched.SetReminder(ctx, ev.ID, args[1], args[2], ev.Name)
				if err != nil {
					return err
				}
				r, _ := sched.Store().Get(ev.ID)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reminder for %s at %s %s (permission %s, scheduled %t)\n",
					ev.Name, r.ReminderDate, r.ReminderTime, perm, r.NotificationScheduled)
				return nil
			})
		},
	}
	remindCmd.Flags().Bool("clear", false, "Remove the reminder instead")
	rootCmd.AddCommand(remindCmd)

	// reminders
	rootCmd.AddCommand(&cobra.Command{
		Use:   "reminders",
		Short: "List reminders, upcoming first then completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				printReminders(cmd.OutOrStdout(), a.scheduler(ctx).List(a.catalog.Get()))
				return nil
			})
		},
	})
}

func printGroups(w io.Writer, groups []schedule.Group) {
	if len(groups) == 0 {
		_, _ = fmt.Fprintln(w, "Nothing planned yet.")
		return
	}
	printLevel(w, groups, "")
}

func printLevel(w io.Writer, groups []schedule.Group, indent string) {
	for _, g := range groups {
		_, _ = fmt.Fprintf(w, "%s== %s ==\n", indent, g.Key)
		printLevel(w, g.Groups, indent+"  ")
		for _, e := range g.Entries {
			label := ""
			if e.Status != model.StatusNone {
				label = e.Status.Style().Label
			}
			_, _ = fmt.Fprintf(w, "%s  %8s  %-32s %-20s %s\n",
				indent, schedule.Format12h(e.Event.StartTime), e.Event.Name, e.Event.Location, label)
		}
	}
}

func printReminders(w io.Writer, items []reminder.Item) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "No reminders.")
		return
	}
	for _, completed := range []bool{false, true} {
		for _, it := range items {
			if it.Completed != completed {
				continue
			}
			state := "upcoming"
			if completed {
				state = "done"
			}
			_, _ = fmt.Fprintf(w, "%-8s %s %s  %s (%s)\n",
				state, it.Reminder.ReminderDate, it.Reminder.ReminderTime, it.Event.Name, it.Event.Location)
		}
	}
}
