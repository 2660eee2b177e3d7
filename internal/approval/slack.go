package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// SlackNotifier posts approval requests to a Slack channel as Block Kit
// messages and updates the thread when the request resolves. Decisions flow
// back through Gate.Respond, driven by whatever handles the workspace's
// interaction callbacks.
type SlackNotifier struct {
	api     *slack.Client
	channel string

	mu sync.Mutex
	// ts maps request IDs to message timestamps for threading updates.
	ts map[string]string
}

// Block action IDs on the approval message.
const (
	ActionApprove       = "approve"
	ActionApproveAlways = "approve_always"
	ActionDeny          = "deny"
)

// DecisionForAction maps a block action ID from the approval message to the
// decision it represents, for interaction callback handlers feeding
// Gate.Respond.
func DecisionForAction(actionID string) (Decision, bool) {
	switch actionID {
	case ActionApprove:
		return Decision{Approved: true}, true
	case ActionApproveAlways:
		return Decision{Approved: true, AlwaysAllow: true}, true
	case ActionDeny:
		return Decision{}, true
	}
	return Decision{}, false
}

// NewSlackNotifier creates a notifier for the given bot token and channel ID.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		api:     slack.New(token),
		channel: channel,
		ts:      map[string]string{},
	}
}

// NotifyRequest posts the approval request.
func (n *SlackNotifier) NotifyRequest(ctx context.Context, req Request, suggestion string) error {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(
		slack.PlainTextType, fmt.Sprintf("Approval needed: %s", req.ToolName), false, false))

	args, _ := json.MarshalIndent(req.Args, "", "  ")
	argText := string(args)
	if len(argText) > 2000 {
		argText = argText[:2000] + "\n..."
	}
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Risk:* %s", req.RiskLevel), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Request:* `%s`", req.RequestID), false, false),
	}
	if req.Stats != nil {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*History:* %d/%d approved", req.Stats.Approvals, req.Stats.TotalRequests), false, false))
	}
	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("```%s```", argText), false, false),
		fields, nil)

	approve := slack.NewButtonBlockElement(ActionApprove, req.RequestID,
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false))
	approve.Style = slack.StylePrimary
	always := slack.NewButtonBlockElement(ActionApproveAlways, req.RequestID,
		slack.NewTextBlockObject(slack.PlainTextType, "Always allow", false, false))
	deny := slack.NewButtonBlockElement(ActionDeny, req.RequestID,
		slack.NewTextBlockObject(slack.PlainTextType, "Deny", false, false))
	deny.Style = slack.StyleDanger
	actions := slack.NewActionBlock("approval_actions", approve, always, deny)

	blocks := []slack.Block{header, section, actions}
	if suggestion != "" {
		blocks = append(blocks, slack.NewContextBlock("approval_suggestion",
			slack.NewTextBlockObject(slack.MarkdownType, suggestion, false, false)))
	}

	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(fmt.Sprintf("Approval needed for %s", req.ToolName), false),
		slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("post approval request: %w", err)
	}
	n.mu.Lock()
	n.ts[req.RequestID] = ts
	n.mu.Unlock()
	return nil
}

// NotifyResolved threads the outcome under the original message.
func (n *SlackNotifier) NotifyResolved(ctx context.Context, requestID, status string) error {
	n.mu.Lock()
	ts, ok := n.ts[requestID]
	delete(n.ts, requestID)
	n.mu.Unlock()

	opts := []slack.MsgOption{slack.MsgOptionText(
		fmt.Sprintf("Request `%s` %s", requestID, strings.ToUpper(status)), false)}
	if ok {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	if _, _, err := n.api.PostMessageContext(ctx, n.channel, opts...); err != nil {
		return fmt.Errorf("post approval resolution: %w", err)
	}
	return nil
}
