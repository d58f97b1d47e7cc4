package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/diff"
)

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <version> <componentId>",
		Short: "Switch a component to a version",
		Long: `Switch the working copy of a component to a tagged version.

Local edits are merged into the target version. Files that cannot be merged
cleanly are written with conflict markers and listed; the switch still
succeeds.

Example: version-vault use 0.0.2 bar/foo`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			id, err := component.ParseID(args[1])
			if err != nil {
				return err
			}
			res, err := a.switcher.Switch(cmd.Context(), id, component.Version(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "the following components were switched to version %s: %s\n", res.Version, res.ID)
			if len(res.Dependencies) > 0 {
				fmt.Fprintln(out, "dependencies added:")
				for _, d := range res.Dependencies {
					fmt.Fprintf(out, "  %s\n", d)
				}
			}
			if len(res.Conflicts) > 0 {
				fmt.Fprintln(out, "files with conflicts (please resolve manually):")
				for _, p := range res.Conflicts {
					fmt.Fprintf(out, "  %s\n", p)
				}
			}
			return nil
		}),
	}
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <componentId> <file>...",
		Short: "Track files as part of a component",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			id, err := component.ParseID(args[0])
			if err != nil {
				return err
			}
			key, err := a.tagger.Add(id, args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracking %d file(s) as %s\n", len(args)-1, key)
			return nil
		}),
	}
}

func newTagCmd() *cobra.Command {
	var deps []string

	cmd := &cobra.Command{
		Use:   "tag <componentId> <version>",
		Short: "Tag the tracked files of a component as a version",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			id, err := component.ParseID(args[0])
			if err != nil {
				return err
			}
			pins := make([]component.Dependency, 0, len(deps))
			for _, d := range deps {
				pin, err := component.ParseDependency(d)
				if err != nil {
					return err
				}
				pins = append(pins, pin)
			}

			snap, err := a.tagger.Tag(cmd.Context(), id, component.Version(args[1]), pins)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tagged %s with %d file(s)\n", component.Key(snap.ID, snap.Version), len(snap.Files))
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&deps, "dep", nil, "Dependency pin as id@version, repeatable")
	return cmd
}

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <componentId>",
		Short: "List the tagged versions of a component",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			id, err := component.ParseID(args[0])
			if err != nil {
				return err
			}
			versions, err := a.snapshots.ListVersions(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				return fmt.Errorf("component %s doesn't have any version yet", id)
			}

			_, active, _, _ := a.tracking.Active(id)
			out := cmd.OutOrStdout()
			for _, v := range versions {
				marker := " "
				if v == active {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, v)
			}
			return nil
		}),
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <componentId> <version> <version>",
		Short: "Show the changes between two versions of a component",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			id, err := component.ParseID(args[0])
			if err != nil {
				return err
			}
			var snaps [2]*component.Snapshot
			for i, v := range args[1:] {
				if snaps[i], err = a.snapshots.GetSnapshot(cmd.Context(), id, component.Version(v)); err != nil {
					return fmt.Errorf("failed to get %s: %w", component.Key(id, component.Version(v)), err)
				}
			}

			files, err := diff.Snapshots(snaps[0], snaps[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				if f.Diff.Binary {
					fmt.Fprintf(out, "Binary file %s differs\n", f.Path)
					continue
				}
				fmt.Fprint(out, f.Diff.UnifiedDiff)
			}
			return nil
		}),
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tracked components and whether they are modified",
		Args:  cobra.NoArgs,
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, key := range a.tracking.Keys() {
				e, _ := a.tracking.Get(key)
				if e.IsNested() {
					continue
				}
				id, v, err := component.ParseKey(key)
				if err != nil {
					return err
				}

				state := "new"
				if v != "" {
					modified, err := a.switcher.Modified(cmd.Context(), id)
					if err != nil {
						return err
					}
					state = "unmodified"
					if modified {
						state = "modified"
					}
				}
				fmt.Fprintf(out, "%s\t%s\n", key, state)
			}
			return nil
		}),
	}
}
