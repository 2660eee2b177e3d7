package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/KafClaw/agentcore/internal/approval"
)

// cliNotifier surfaces approval requests on the terminal. The prompt answer
// is read on a goroutine and fed back through the gate, so NotifyRequest
// never blocks the agent loop.
type cliNotifier struct {
	gate *approval.Gate
	in   *bufio.Reader
}

func newCLINotifier() *cliNotifier {
	return &cliNotifier{in: bufio.NewReader(os.Stdin)}
}

func (n *cliNotifier) NotifyRequest(_ context.Context, req approval.Request, suggestion string) error {
	fmt.Println()
	fmt.Println(color.YellowString("⏸ Approval required: %s", req.ToolName))
	fmt.Printf("  Risk: %s\n", riskColored(req.RiskLevel))
	if args, err := json.MarshalIndent(req.Args, "  ", "  "); err == nil {
		fmt.Printf("  Args: %s\n", string(args))
	}
	if req.Stats != nil && req.Stats.TotalRequests > 0 {
		fmt.Printf("  History: %d approvals / %d denials\n", req.Stats.Approvals, req.Stats.Denials)
	}
	if suggestion != "" {
		fmt.Println("  " + color.CyanString(suggestion))
	}
	fmt.Print("  Approve? [y]es / [a]lways / [N]o ")

	go func() {
		line, err := n.in.ReadString('\n')
		var dec approval.Decision
		if err == nil {
			switch answer := strings.ToLower(strings.TrimSpace(line)); {
			case strings.HasPrefix(answer, "a"):
				dec = approval.Decision{Approved: true, AlwaysAllow: true}
			case strings.HasPrefix(answer, "y"):
				dec = approval.Decision{Approved: true}
			}
		}
		if n.gate != nil {
			_ = n.gate.Respond(req.RequestID, dec)
		}
	}()
	return nil
}

func (n *cliNotifier) NotifyResolved(_ context.Context, requestID, status string) error {
	switch status {
	case approval.StatusApproved:
		fmt.Println(color.GreenString("✓ approved"))
	case approval.StatusDenied:
		fmt.Println(color.RedString("✗ denied"))
	case approval.StatusTimeout:
		fmt.Println(color.RedString("✗ timed out"))
	}
	return nil
}

func riskColored(level approval.RiskLevel) string {
	switch level {
	case approval.RiskLow:
		return color.GreenString(string(level))
	case approval.RiskMedium:
		return color.YellowString(string(level))
	default:
		return color.RedString(string(level))
	}
}
