package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/killpoints/pkg/logger"
)

type outputFlags struct {
	json bool
}

func (o *outputFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "print JSON")
}

func pointsCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "points <character name or id>",
		Short: "Compute the current total of a character",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.queryStack(ctx)
			if err != nil {
				return err
			}
			id, err := st.client.ResolveCharacter(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			total, err := st.svc.EntityTotal(ctx, id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out.json {
				return writeJSON(w, map[string]any{"entity_id": id, "points": total})
			}
			_, err = fmt.Fprintf(w, "%d: %.2f points\n", id, total)
			return err
		},
	}
	out.bind(cmd)
	return cmd
}

func breakdownCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "breakdown <character name or id>",
		Short: "List the best kill chains of a character",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := c.queryStack(ctx)
			if err != nil {
				return err
			}
			id, err := st.client.ResolveCharacter(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			chains, total, err := st.svc.Breakdown(ctx, id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out.json {
				return writeJSON(w, map[string]any{"entity_id": id, "points": total, "chains": chains})
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tKILL\tKILLS\tPOINTS")
			for i, ch := range chains {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\n", i+1, ch.RepresentativeID, len(ch.Kills), ch.Points)
			}
			fmt.Fprintf(tw, "\ttotal\t\t%.2f\n", total)
			return tw.Flush()
		},
	}
	out.bind(cmd)
	return cmd
}

func explainCmd(c *cli) *cobra.Command {
	var (
		out         outputFlags
		perspective string
	)
	cmd := &cobra.Command{
		Use:   "explain <kill id> [hash]",
		Short: "Score a single kill",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var killID int64
			if _, err := fmt.Sscan(args[0], &killID); err != nil || killID <= 0 {
				return fmt.Errorf("invalid kill id %q", args[0])
			}
			var hash string
			if len(args) == 2 {
				hash = args[1]
			}
			st, err := c.queryStack(ctx)
			if err != nil {
				return err
			}
			var pid int64
			if perspective != "" {
				if pid, err = st.client.ResolveCharacter(ctx, perspective); err != nil {
					return err
				}
			}
			exp, err := st.svc.Explain(ctx, killID, hash, pid)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out.json {
				return writeJSON(w, exp)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "kill\t%d\n", exp.KillID)
			fmt.Fprintf(tw, "time\t%s\n", exp.Time.Format(time.RFC3339))
			if exp.Perspective != 0 {
				fmt.Fprintf(tw, "perspective\t%d\n", exp.Perspective)
			}
			fmt.Fprintf(tw, "score\t%.2f\n", exp.Score)
			fmt.Fprintf(tw, "window\t%s\n", exp.Window)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&perspective, "perspective", "", "score the kill for this character (name or id)")
	out.bind(cmd)
	return cmd
}

// queryStack builds the engine for a one-shot query. Rules must load.
func (c *cli) queryStack(ctx context.Context) (*stack, error) {
	st, err := buildStack(ctx, c.cfg, logger.Get())
	if err != nil {
		return nil, err
	}
	if err := st.table.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return st, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
