package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cloudtrail-notifier/internal/classifier"
	"cloudtrail-notifier/internal/config"
	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/rules"
)

type evalOptions struct {
	eventFile     string
	rules         []string
	ignoreRules   []string
	rulesFile     string
	eventsToTrack string
	functionName  string
	noDefaults    bool
}

func newEvalCommand() *cobra.Command {
	opts := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Classify events from a JSON or YAML file",
		Long: `eval reads one event, a list of events, or a CloudTrail log file
({"Records": [...]}) and reports which rule matched each event.

Use --event - to read JSON from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.eventFile, "event", "e", "", "Event file (.json, .yaml, .yml or - for stdin)")
	cmd.Flags().StringArrayVarP(&opts.rules, "rule", "r", nil, "Extra include rule (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.ignoreRules, "ignore-rule", "i", nil, "Ignore rule (repeatable)")
	cmd.Flags().StringVar(&opts.rulesFile, "rules-file", "", "YAML rules file with rules and ignore_rules lists")
	cmd.Flags().StringVar(&opts.eventsToTrack, "events-to-track", "", "Comma separated event names to always notify")
	cmd.Flags().StringVar(&opts.functionName, "function-name", rules.DefaultFunctionName, "Notifier function name watched by the default rules")
	cmd.Flags().BoolVar(&opts.noDefaults, "no-defaults", false, "Do not include the built-in rules")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func runEval(cmd *cobra.Command, opts *evalOptions) error {
	cfg := &config.Config{
		UseDefaultRules: !opts.noDefaults,
		FunctionName:    opts.functionName,
		RulesFile:       opts.rulesFile,
		EventsToTrack:   opts.eventsToTrack,
		RulesSeparator:  ",",
	}
	set, err := cfg.EffectiveRules()
	if err != nil && !(errors.Is(err, config.ErrNoRules) && len(opts.rules) > 0) {
		return err
	}
	set.Include = append(set.Include, opts.rules...)
	set.Ignore = append(set.Ignore, opts.ignoreRules...)

	evs, err := loadEvents(opts.eventFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	c := classifier.New(rules.Compile(set.Include), rules.Compile(set.Ignore))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d include rules, %d ignore rules, %d events\n\n", len(set.Include), len(set.Ignore), len(evs))

	matched := 0
	for i, ev := range evs {
		d := c.Classify(ev)
		fmt.Fprintf(out, "event %d: %s (%s)\n", i+1, orUnknown(ev.String("eventName")), orUnknown(ev.String("recipientAccountId")))
		for _, ruleErr := range d.Errors {
			red.Fprintf(out, "  ERROR     %v\n", ruleErr)
		}
		switch {
		case d.ShouldProcess:
			matched++
			green.Fprintf(out, "  MATCH     %s\n", d.Matched)
		case d.Ignored:
			yellow.Fprintf(out, "  IGNORED   %s\n", d.Matched)
		default:
			faint.Fprintf(out, "  NO MATCH\n")
		}
	}
	fmt.Fprintf(out, "\n%d of %d events would be notified\n", matched, len(evs))
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// loadEvents reads events from path. YAML is chosen by extension; everything
// else, including stdin, is JSON with numbers kept as json.Number.
func loadEvents(path string, stdin io.Reader) ([]events.Event, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML events: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON events: %w", err)
		}
	}
	return toEvents(doc)
}

func toEvents(doc any) ([]events.Event, error) {
	switch v := doc.(type) {
	case map[string]any:
		if records, ok := v["Records"].([]any); ok {
			return toEvents(records)
		}
		return []events.Event{events.Event(v)}, nil
	case []any:
		out := make([]events.Event, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("event %d is not an object", i+1)
			}
			out = append(out, events.Event(m))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("events must be an object or a list of objects")
	}
}
