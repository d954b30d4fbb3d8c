// Package reports detects document requests in chat messages, builds the
// requested report, and shares it through the company drive.
package reports

import "strings"

// Action names returned by Detect. Only document writing has an automated
// handler; the others feed logging and capability checks.
const (
	ActionDocumentWriting = "document_writing"
	ActionShare           = "share"
	ActionRepoWork        = "repo_work"
	ActionVehicleRepair   = "vehicle_repair"
	ActionSchedule        = "schedule"
)

// actionPatterns maps each action to the keywords that request it.
var actionPatterns = map[string][]string{
	ActionDocumentWriting: {
		"write", "document", "report", "draft", "memo", "create a doc",
		"put together", "write up", "documentation", "paper", "summary",
	},
	ActionShare: {
		"share", "send", "distribute", "post", "upload", "sharepoint",
	},
	ActionRepoWork: {
		"repo", "car", "vehicle", "pickup", "impound", "grab", "snag",
		"deadbeat", "delinquent", "recovery",
	},
	ActionVehicleRepair: {
		"fix", "repair", "mechanic", "engine", "broken", "maintenance",
		"tune up", "check out", "look at",
	},
	ActionSchedule: {
		"schedule", "calendar", "meeting", "appointment", "when", "time",
	},
}

// Detect finds the action a message is asking for. When keywords from
// several actions appear, the action with the most matches wins; ties
// resolve to the action with the alphabetically first name so detection
// stays deterministic. Returns "" when nothing matches.
func Detect(message string) (action string, matched []string) {
	lower := strings.ToLower(message)
	for name, keywords := range actionPatterns {
		var hits []string
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) == 0 {
			continue
		}
		if len(hits) > len(matched) || (len(hits) == len(matched) && (action == "" || name < action)) {
			action, matched = name, hits
		}
	}
	return action, matched
}

// WantsShare reports whether the message asks for the document to be
// distributed rather than just drafted.
func WantsShare(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "share") || strings.Contains(lower, "sharepoint")
}
