package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/simlink"
	"github.com/hupe1980/simlink/core"
)

type fieldDoc struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default any    `yaml:"default"`
	Units   string `yaml:"units,omitempty"`
}

func newSchemaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [model]",
		Short: "Start the model's engine and print its spaces",
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
			return writeSchema(cmd.OutOrStdout(), s.Schema())
		},
	}
}

// writeSchema prints the schema as YAML, one sequence per space.
func writeSchema(w io.Writer, schema *core.Schema) error {
	doc := yaml.Node{Kind: yaml.MappingNode}
	for _, name := range []core.SpaceName{
		core.SpaceConfiguration,
		core.SpaceObservation,
		core.SpaceAction,
		core.SpaceOutputs,
		core.SpaceEngineSettings,
	} {
		fields := []fieldDoc{}
		for _, f := range schema.Template(name).Fields() {
			fields = append(fields, fieldDoc{Name: f.Name, Type: f.Type.String(), Default: core.WireValue(f.Default), Units: f.Units})
		}
		var value yaml.Node
		if err := value.Encode(fields); err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: string(name)}, &value)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}
