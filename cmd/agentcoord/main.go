// Command agentcoord demonstrates the coordination subsystem end to
// end: register agents, score them for a task, execute a handoff, run
// a bounded workflow, and snapshot the resulting state.
//
// Usage:
//
//	agentcoord demo                       # run the demo conversation
//	agentcoord demo --config config.yaml  # with a config file
//	agentcoord version                    # show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord"
	"github.com/BaSui01/agentcoord/agent"
	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/conversation"
	"github.com/BaSui01/agentcoord/workflow"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo(os.Args[2:])
	case "version":
		fmt.Printf("agentcoord %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`agentcoord - multi-agent conversation coordination

Usage:
  agentcoord demo [--config config.yaml]
  agentcoord version`)
}

func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML configuration")
	_ = fs.Parse(args)

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	sys, err := agentcoord.New(cfg, demoReasoner(), agentcoord.WithConversationID("demo"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build system: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer func() { _ = sys.Close(ctx) }()

	logger := agentcoord.NewLogger(cfg.Log)

	registerDemoAgents(sys)

	// Pick the best agent for a research task and switch to it.
	criteria := &agent.SelectionCriteria{
		Capabilities:   []string{"web_search"},
		Specialization: []string{"research"},
	}
	best := sys.Scorer.SelectOptimal("summarize recent papers", criteria)
	if best == nil {
		logger.Fatal("no suitable agent")
	}
	if _, err := sys.Coordinator.SwitchToAgent(best.ID, "best match for research task"); err != nil {
		logger.Fatal("switch failed", zap.Error(err))
	}

	if _, err := sys.Store.Dispatch(conversation.UpdateContext{
		Goal: strPtr("summarize recent papers on agent coordination"),
	}); err != nil {
		logger.Fatal("update context failed", zap.Error(err))
	}

	// Run a small bounded workflow for the current agent.
	sys.Engine.Tools().Register(workflow.Tool{
		Name:        "echo",
		Description: "returns its input",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	})

	wf := sys.Engine.CreateWorkflow("demo", "demo workflow", "summarize recent papers")
	if err := sys.Engine.StartWorkflow(wf, workflow.ExecutionContext{
		ConversationID: sys.Store.ConversationID(),
		AgentID:        best.ID,
	}); err != nil {
		logger.Fatal("start workflow failed", zap.Error(err))
	}

	err = sys.Engine.ContinueUntil(ctx, wf, workflow.ContinueOptions{
		Condition: func(wf *workflow.AgentWorkflow, step *workflow.AgentStep) bool {
			return wf.Counters.TotalSteps >= 3
		},
		MaxSteps: 5,
		OnStep: func(step *workflow.AgentStep) {
			logger.Info("step finished",
				zap.String("type", string(step.Type)),
				zap.String("status", string(step.Status)),
			)
		},
	})
	if err != nil {
		logger.Fatal("workflow failed", zap.Error(err))
	}

	snap, err := sys.Snapshots.CreateSnapshot(ctx)
	if err != nil {
		logger.Warn("snapshot persistence incomplete", zap.Error(err))
	}

	fmt.Printf("workflow %s finished with status %s after %d steps\n",
		wf.ID, wf.Status, wf.Counters.TotalSteps)
	fmt.Printf("conversation version %d, snapshot %s retained\n",
		sys.Store.Version(), snap.ID)
}

func registerDemoAgents(sys *agentcoord.System) {
	sys.Directory.Register(agent.Profile{
		ID:             "researcher",
		Name:           "Researcher",
		Specialization: []string{"research"},
		Capabilities: []agent.Capability{
			{Type: "web_search", Level: agent.LevelAdvanced},
			{Type: "summarization", Level: agent.LevelExpert},
		},
		Active:       true,
		RegisteredAt: time.Now(),
	})
	sys.Directory.Register(agent.Profile{
		ID:             "coder",
		Name:           "Coder",
		Specialization: []string{"engineering"},
		Capabilities: []agent.Capability{
			{Type: "code_generation", Level: agent.LevelExpert},
		},
		Active:       true,
		RegisteredAt: time.Now(),
	})
}

// demoReasoner answers every prompt immediately so the demo runs
// without a model backend.
func demoReasoner() workflow.Reasoner {
	return workflow.ReasonerFunc(func(ctx context.Context, modelID, prompt string) (*workflow.ReasonResult, error) {
		return &workflow.ReasonResult{Content: "considered: " + prompt}, nil
	})
}

func strPtr(s string) *string { return &s }
