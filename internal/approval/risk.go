package approval

import "strings"

// RiskLevel classifies how dangerous a tool operation is.
type RiskLevel string

const (
	// RiskLow covers read-only operations.
	RiskLow RiskLevel = "low"
	// RiskMedium covers recoverable state changes.
	RiskMedium RiskLevel = "medium"
	// RiskHigh covers operations with significant blast radius.
	RiskHigh RiskLevel = "high"
	// RiskCritical covers destructive or irreversible operations.
	RiskCritical RiskLevel = "critical"
)

// RiskForTool maps a tool name onto the risk ladder. Unknown tools default to
// high; sub-agents are medium because their own tool calls go through the
// gate again.
func RiskForTool(tool string) RiskLevel {
	switch tool {
	case "read_file", "grep_file", "list_files",
		"indexer_search_code", "indexer_search_files", "indexer_analyze_file",
		"indexer_extract_symbols", "indexer_get_metrics", "indexer_detect_language",
		"debug_agent", "analyze_agent", "get_errors",
		"list_skills", "search_skills", "load_skill", "search_tools",
		"update_plan", "web_fetch":
		return RiskLow
	case "write_file", "create_file", "edit_file", "apply_patch", "save_skill":
		return RiskMedium
	case "run_pty_cmd", "create_pty_session", "send_pty_input":
		return RiskHigh
	case "delete_file", "execute_code":
		return RiskCritical
	default:
		if strings.HasPrefix(tool, "sub_agent_") {
			return RiskMedium
		}
		return RiskHigh
	}
}
