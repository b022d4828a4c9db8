package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// SearchFile is the YAML form of a search. Terms use N-Quads syntax and
// ?name for variables.
//
//	stages:
//	  - subject: ?person
//	    predicate: <http://xmlns.com/foaf/0.1/age>
//	    object: ?age
//	  - filter: gte
//	    variable: age
//	    value: '"18"^^<http://www.w3.org/2001/XMLSchema#integer>'
//	project: [person]
//	distinct: true
type SearchFile struct {
	StageSpecs       []SearchStage `yaml:"stages"`
	Project          []string      `yaml:"project,omitempty"`
	Distinct         bool          `yaml:"distinct,omitempty"`
	Limit            int           `yaml:"limit,omitempty"`
	DefaultGraphOnly bool          `yaml:"default_graph_only,omitempty"`
}

// SearchStage is either a pattern (any of the role keys) or a filter
type SearchStage struct {
	Subject   string `yaml:"subject,omitempty"`
	Predicate string `yaml:"predicate,omitempty"`
	Object    string `yaml:"object,omitempty"`
	Graph     string `yaml:"graph,omitempty"`

	Filter   string `yaml:"filter,omitempty"`
	Variable string `yaml:"variable,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// ParseSearchFile decodes a search description
func ParseSearchFile(data []byte) (*SearchFile, error) {
	var sf SearchFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("invalid search file: %w", err)
	}
	if len(sf.StageSpecs) == 0 {
		return nil, fmt.Errorf("search file has no stages")
	}
	return &sf, nil
}

// Stages converts the YAML stages into store stages
func (sf *SearchFile) Stages() ([]store.Stage, error) {
	stages := make([]store.Stage, 0, len(sf.StageSpecs))
	for i, s := range sf.StageSpecs {
		stage, err := s.compile()
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func (s *SearchStage) compile() (store.Stage, error) {
	if s.Filter != "" {
		if s.Subject != "" || s.Predicate != "" || s.Object != "" || s.Graph != "" {
			return nil, fmt.Errorf("filter stage cannot have pattern roles")
		}
		value, err := rdf.ParseTerm(s.Value)
		if err != nil {
			return nil, fmt.Errorf("filter value: %w", err)
		}
		return &store.FilterStage{
			Op:       store.FilterOp(s.Filter),
			Variable: strings.TrimPrefix(s.Variable, "?"),
			Value:    value,
		}, nil
	}
	if s.Variable != "" || s.Value != "" {
		return nil, fmt.Errorf("variable and value need a filter operator")
	}

	var vals [4]any
	for r, text := range [4]string{s.Subject, s.Predicate, s.Object, s.Graph} {
		if text == "" {
			continue
		}
		term, err := rdf.ParseTerm(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rdf.Role(r), err)
		}
		vals[r] = term
	}
	return &store.PatternStage{Subject: vals[0], Predicate: vals[1], Object: vals[2], Graph: vals[3]}, nil
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <stages.yaml>",
		Short: "Run a multi-pattern search",
		Long: `Run a search described by a YAML file: a list of pattern and filter
stages joined on shared variables, with optional projection, distinct
and limit. Bindings are printed one row per line, or as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSearch(ctx context.Context, opts *RootOptions, file string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(file) // #nosec G304 - user-supplied search file
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read search file", err)
	}
	sf, err := ParseSearchFile(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid search", err)
	}
	stages, err := sf.Stages()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid search", err)
	}
	searchOpts := &store.SearchOpts{Project: sf.Project, Distinct: sf.Distinct, Limit: sf.Limit}
	if sf.DefaultGraphOnly {
		searchOpts.DefaultGraphMode = store.DefaultGraphOnly
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	res, err := st.Search(ctx, stages, searchOpts)
	if err != nil {
		return WrapExitError(ExitFailure, "search failed", err)
	}
	opts.logger.Debug("search finished", "type", res.Type.String(), "bindings", len(res.Bindings), "quads", len(res.Quads))

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		doc := map[string]any{"type": res.Type.String()}
		if res.Type == store.ResultBindings {
			rows := make([]map[string]string, 0, len(res.Bindings))
			for _, b := range res.Bindings {
				row := make(map[string]string, len(b))
				for name, term := range b {
					row[name] = term.String()
				}
				rows = append(rows, row)
			}
			doc["variables"] = res.Variables
			doc["bindings"] = rows
		} else {
			quads := make([]jsonQuad, 0, len(res.Quads))
			for _, q := range res.Quads {
				quads = append(quads, toJSONQuad(q))
			}
			doc["quads"] = quads
		}
		return json.NewEncoder(out).Encode(doc)
	}

	if res.Type == store.ResultQuads {
		w := rdf.NewNQuadsWriter(out)
		for _, q := range res.Quads {
			if err := w.Write(q); err != nil {
				return err
			}
		}
		return w.Flush()
	}
	for _, b := range res.Bindings {
		if _, err := fmt.Fprintln(out, b.String()); err != nil {
			return err
		}
	}
	return nil
}
