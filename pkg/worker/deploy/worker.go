// Package deploy implements the "deploy" worker: a thin facade over
// pkg/deploy's analyze→clone→setup→start state machine, exposed through the
// uniform worker contract (spec §4.6/§4.7 executor+diagnoser, §4.4 FSM,
// §4.5 planner).
package deploy

import (
	"context"
	"fmt"

	"github.com/opsai/opsai/pkg/deploy"
	"github.com/opsai/opsai/pkg/worker"
)

// Worker exposes pkg/deploy.Deployer as a single "deploy" action.
type Worker struct {
	deployer *deploy.Deployer
}

// New builds a deploy Worker over the given Deployer.
func New(deployer *deploy.Deployer) *Worker {
	return &Worker{deployer: deployer}
}

func (w *Worker) Name() string { return "deploy" }

func (w *Worker) Capabilities() []string { return []string{"deploy"} }

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	if action != "deploy" {
		return worker.Unknown(action)
	}

	repoURL, ok := args.GetString("repo_url")
	if !ok || repoURL == "" {
		return worker.WorkerResult{Success: false, Message: "repo_url is required"}
	}

	targetDir, _ := args.GetString("target_dir")
	dryRun := args.GetBool("dry_run", false)

	result := w.deployer.Deploy(ctx, repoURL, targetDir, dryRun)

	return worker.WorkerResult{
		Success: result.Success,
		Message: result.Message,
		Data: []worker.DataRow{{
			"repo_url":     result.RepoURL,
			"project_dir":  result.ProjectDir,
			"project_type": result.ProjectType,
			"success":      fmt.Sprintf("%t", result.Success),
		}},
		TaskCompleted: result.Success,
		Simulated:     result.Simulated,
	}
}
