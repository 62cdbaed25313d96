package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/floe"
	"github.com/deepnoodle-ai/floe/activities"
	"github.com/deepnoodle-ai/floe/script"
)

// CLI configuration
type Config struct {
	WorkflowFile string
	Input        map[string]any
	Variables    map[string]any
	InstanceID   string
	BookmarkID   string
	DataDir      string
	Timeout      time.Duration
	Verbose      bool
	JSON         bool
	List         bool
}

func main() {
	config := parseFlags()

	logger := setupLogger(config.Verbose)

	store, err := floe.NewFileStateStore(config.DataDir)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	if config.List {
		listInstances(store)
		return
	}

	if config.WorkflowFile == "" {
		color.Red("Error: workflow file is required")
		flag.Usage()
		os.Exit(1)
	}

	color.Blue("Loading workflow from: %s", config.WorkflowFile)
	workflow, err := floe.LoadFile(config.WorkflowFile)
	if err != nil {
		log.Fatalf("Failed to load workflow: %v", err)
	}
	color.Cyan("Workflow: %s", workflow.Name())
	if workflow.Description() != "" {
		color.White("Description: %s", workflow.Description())
	}

	compiler := script.NewExprScriptingEngine(nil)
	registry := activities.DefaultRegistry(compiler)
	if err := registry.Validate(workflow.Graph()); err != nil {
		log.Fatalf("Workflow uses unknown activities: %v", err)
	}

	runner, err := floe.NewRunner(floe.RunnerOptions{
		Registry: registry,
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	var result *floe.RunResult
	if config.InstanceID != "" {
		result, err = runner.ResumeInstance(ctx, workflow, config.InstanceID, &floe.RunWorkflowOptions{
			BookmarkID: config.BookmarkID,
			Input:      config.Input,
			Variables:  config.Variables,
		})
	} else {
		result, err = runner.Run(ctx, workflow, &floe.RunWorkflowOptions{
			Input:     config.Input,
			Variables: config.Variables,
		})
	}
	if err != nil {
		log.Fatalf("Workflow run failed: %v", err)
	}

	printResult(config, result)
}

func parseFlags() *Config {
	config := &Config{
		Input:     map[string]any{},
		Variables: map[string]any{},
	}
	var inputFlags, variableFlags stringMapFlag
	inputFlags.target = config.Input
	variableFlags.target = config.Variables

	flag.StringVar(&config.WorkflowFile, "workflow", "", "Path to the workflow YAML file")
	flag.Var(&inputFlags, "input", "Workflow input as key=value (repeatable)")
	flag.Var(&variableFlags, "var", "Dynamic variable as key=value (repeatable)")
	flag.StringVar(&config.InstanceID, "resume", "", "Resume the workflow instance with this ID")
	flag.StringVar(&config.BookmarkID, "bookmark", "", "Resume from this bookmark ID (with -resume)")
	flag.StringVar(&config.DataDir, "data-dir", "", "Directory for persisted workflow state")
	flag.DurationVar(&config.Timeout, "timeout", 5*time.Minute, "Run timeout")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&config.JSON, "json", false, "Print the final state as JSON")
	flag.BoolVar(&config.List, "list", false, "List persisted workflow instances")
	flag.Parse()
	return config
}

// stringMapFlag accumulates repeated key=value flags into a map.
type stringMapFlag struct {
	target map[string]any
}

func (f *stringMapFlag) String() string {
	return ""
}

func (f *stringMapFlag) Set(value string) error {
	key, raw, found := strings.Cut(value, "=")
	if !found {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		parsed = raw
	}
	f.target[key] = parsed
	return nil
}

func setupLogger(verbose bool) *slog.Logger {
	if verbose {
		return floe.NewLogger()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func listInstances(store *floe.FileStateStore) {
	summaries, err := store.ListInstances(context.Background())
	if err != nil {
		log.Fatalf("Failed to list instances: %v", err)
	}
	if len(summaries) == 0 {
		color.White("No workflow instances found")
		return
	}
	for _, summary := range summaries {
		statusColor := color.New(color.FgGreen)
		switch summary.SubStatus {
		case floe.WorkflowSubStatusFaulted:
			statusColor = color.New(color.FgRed)
		case floe.WorkflowSubStatusSuspended:
			statusColor = color.New(color.FgYellow)
		}
		fmt.Printf("%s  %s  %s  incidents=%d bookmarks=%d\n",
			summary.InstanceID,
			summary.DefinitionID,
			statusColor.Sprint(summary.SubStatus),
			summary.Incidents,
			summary.Bookmarks)
	}
}

func printResult(config *Config, result *floe.RunResult) {
	wec := result.WorkflowExecutionContext
	if config.JSON {
		data, err := json.MarshalIndent(result.WorkflowState, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal state: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Println()
	switch wec.SubStatus() {
	case floe.WorkflowSubStatusFinished:
		color.Green("Workflow finished")
	case floe.WorkflowSubStatusSuspended:
		color.Yellow("Workflow suspended (instance %s)", wec.InstanceID())
		for _, bookmark := range wec.Bookmarks() {
			color.White("  bookmark %s  name=%s", bookmark.ID, bookmark.Name)
		}
	case floe.WorkflowSubStatusFaulted:
		color.Red("Workflow faulted")
		for _, incident := range wec.Incidents() {
			color.White("  %s: %s", incident.ActivityNodeID, incident.Message)
		}
	case floe.WorkflowSubStatusCancelled:
		color.Red("Workflow cancelled")
	}
	if result.Result != nil {
		color.Cyan("Result: %v", result.Result)
	}
	if len(wec.Output()) > 0 {
		color.Cyan("Output: %v", wec.Output())
	}
}
