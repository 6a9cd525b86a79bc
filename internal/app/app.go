package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "upload":
		return runUpload(args[1:])
	case "batches":
		return runBatches(args[1:])
	case "show":
		return runShow(args[1:])
	case "detect":
		return runDetect(args[1:])
	case "approve":
		return runApprove(args[1:])
	case "reject":
		return runReject(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "import":
		return runImport(args[1:])
	case "cancel":
		return runCancel(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "stagehand CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  stagehand <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  upload   Validate a question batch file and stage it for review")
	fmt.Fprintln(os.Stderr, "  batches  List upload batches")
	fmt.Fprintln(os.Stderr, "  show     Show one batch with its staged questions")
	fmt.Fprintln(os.Stderr, "  detect   Run duplicate detection for a batch")
	fmt.Fprintln(os.Stderr, "  approve  Approve a staged question")
	fmt.Fprintln(os.Stderr, "  reject   Reject a staged question")
	fmt.Fprintln(os.Stderr, "  resolve  Record a resolution for a duplicate match")
	fmt.Fprintln(os.Stderr, "  import   Import a batch's approved questions into production")
	fmt.Fprintln(os.Stderr, "  cancel   Cancel a batch")
	fmt.Fprintln(os.Stderr, "  stats    Show staging and production counts")
	fmt.Fprintln(os.Stderr, "  serve    Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"stagehand <command> -h\" for command-specific flags.")
}
