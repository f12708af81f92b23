package rules

import (
	"fmt"
	"strings"
)

// DefaultRulesVersion identifies the built-in rule set. Bump it whenever DefaultRules changes.
const DefaultRulesVersion = "2024-06-01"

// DefaultFunctionName is the notifier's own function name used when FUNCTION_NAME is unset.
const DefaultFunctionName = "fivexl-cloudtrail-to-slack"

// DefaultRules returns the built-in include rules. functionName is the name of
// the deployed notifier so that changes to the notifier itself are reported.
func DefaultRules(functionName string) []string {
	if functionName == "" {
		functionName = DefaultFunctionName
	}
	quoted := quote(functionName)

	return []string{
		// Console login without MFA, except SSO sessions which enforce MFA upstream.
		`event.get("eventName", "") == "ConsoleLogin" ` +
			`and event.get("additionalEventData.MFAUsed", "") != "Yes" ` +
			`and "assumed-role/AWSReservedSSO" not in event.get("userIdentity.arn", "")`,
		`event.get("errorCode", "").endswith(("UnauthorizedOperation"))`,
		// Anonymous access denials are bucket scanners.
		`event.get("errorCode", "").startswith(("AccessDenied")) ` +
			`and (event.get("userIdentity.accountId", "") != "ANONYMOUS_PRINCIPAL")`,
		`event.get("userIdentity.type", "") == "Root" ` +
			`and not event.get("eventName", "").startswith(("Get", "List", "Describe", "Head"))`,
		`event.get("eventName", "") == "AttachUserPolicy" ` +
			`and "AdministratorAccess" in event.get("requestParameters.policyArn", "")`,
		trailRule("StopLogging"),
		trailRule("UpdateTrail"),
		trailRule("DeleteTrail"),
		selfChangeRule(quoted, "UpdateFunctionConfiguration"),
		selfChangeRule(quoted, "UpdateFunctionCode"),
	}
}

func trailRule(eventName string) string {
	return fmt.Sprintf(`event.get("eventSource", "") == "cloudtrail.amazonaws.com" and event.get("eventName", "") == %q`, eventName)
}

func selfChangeRule(quotedFunction, eventPrefix string) string {
	return `event.get("eventSource", "") == "lambda.amazonaws.com" ` +
		`and "responseElements.functionName" in event ` +
		`and event["responseElements.functionName"] == ` + quotedFunction + ` ` +
		fmt.Sprintf(`and event.get("eventName", "").startswith((%q))`, eventPrefix)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote renders s as a double quoted rule string literal.
func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

// EventsToTrackRule builds the include rule for a comma separated list of
// event names. Whitespace is ignored. It returns "" when no names remain.
func EventsToTrackRule(eventsToTrack string) string {
	names := strings.Split(strings.ReplaceAll(eventsToTrack, " ", ""), ",")
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		quoted = append(quoted, quote(name))
	}
	if len(quoted) == 0 {
		return ""
	}
	return `"eventName" in event and event["eventName"] in [` + strings.Join(quoted, ", ") + `]`
}

// SplitRules splits operator supplied rule text on sep and drops empty entries.
func SplitRules(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	if sep == "" {
		sep = ","
	}
	var out []string
	for _, r := range strings.Split(raw, sep) {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
