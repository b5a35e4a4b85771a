package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/simlink"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/internal/util"
	"github.com/hupe1980/simlink/logging"
	"github.com/hupe1980/simlink/sim"
	"github.com/hupe1980/simlink/simulator"
)

type runFlags struct {
	sets     []string
	actions  []string
	outputs  []string
	steps    int
	episodes int
}

func (r *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&r.sets, "set", "s", nil, "configuration value as name=value (repeatable)")
	cmd.Flags().StringArrayVarP(&r.actions, "action", "a", nil, "action value as name=value, sent at every step (repeatable)")
	cmd.Flags().StringSliceVarP(&r.outputs, "output", "o", nil, "outputs to print after each episode (default all)")
	cmd.Flags().IntVarP(&r.steps, "steps", "n", 10, "actions per episode; 0 runs until the episode ends")
	cmd.Flags().IntVarP(&r.episodes, "episodes", "e", 1, "number of episodes")
}

func assignments(values []string) (core.Args, error) {
	args := core.Args{}
	for _, s := range values {
		name, v, err := util.ParseAssignment(s)
		if err != nil {
			return nil, err
		}
		args[name] = core.Literal(v)
	}
	return args, nil
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [model]",
		Short: "Run episodes of a model with a fixed action",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(args)
			if err != nil {
				return err
			}
			if err := requireModel(cfg); err != nil {
				return err
			}
			opts, err := cfg.Options(logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			s, err := simlink.Open(ctx, cfg.Model, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			return drive(ctx, cmd.OutOrStdout(), s.Controller, rf)
		},
	}
	rf.register(cmd)
	return cmd
}

func newSimulateCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run episodes of the built-in service desk model without an engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load(nil)
			if err != nil {
				return err
			}
			ctrlOpts, err := cfg.ControllerOptions()
			if err != nil {
				return err
			}

			engine := simulator.New(simulator.ServiceDeskSchema(), simulator.NewServiceDesk(), func(o *simulator.Options) {
				o.Config.AutoFinish = cfg.AutoFinish
				o.Logger = logging.Scoped(logger, "simulator", "service-desk")
			})
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			c, err := sim.New(ctx, engine, ctrlOpts, func(o *sim.Options) { o.Logger = logger })
			if err != nil {
				_ = engine.Close()
				return err
			}
			defer c.Close()
			return drive(ctx, cmd.OutOrStdout(), c, rf)
		},
	}
	rf.register(cmd)
	return cmd
}

// drive runs the requested episodes on c and prints every status and the
// outputs of each episode.
func drive(ctx context.Context, w io.Writer, c *sim.Controller, rf *runFlags) error {
	cfg, err := assignments(rf.sets)
	if err != nil {
		return err
	}
	action, err := assignments(rf.actions)
	if err != nil {
		return err
	}

	for episode := 1; episode <= rf.episodes; episode++ {
		p, err := c.Reset(ctx, cfg)
		if err != nil {
			return err
		}
		st, err := p.Wait(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, st)

		for step := 0; st.State == core.StatePaused && (rf.steps <= 0 || step < rf.steps); step++ {
			if p, err = c.TakeAction(ctx, action); err != nil {
				return err
			}
			if st, err = p.Wait(ctx); err != nil {
				return err
			}
			fmt.Fprintln(w, st)
		}

		out, err := c.Outputs(ctx, rf.outputs...)
		if err != nil {
			return err
		}
		doc, err := out.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "episode %d outputs: %s\n", episode, doc)
	}
	return nil
}
