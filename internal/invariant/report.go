package invariant

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RenderReport formats a run report for humans. Output is deterministic
// for a given report (rule order is registration order, violations keep
// discovery order) so it can be golden-tested; elapsed times are excluded
// for the same reason.
func RenderReport(r *Report) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	verdict := "PASS"
	if !r.Passed() {
		verdict = "FAIL"
	}
	p.Fprintf(&b, "invariant run: %s (%d violations across %d rules)\n",
		verdict, r.TotalViolations(), len(r.Results))

	for _, res := range r.Results {
		b.WriteString("\n")
		switch {
		case res.Err != nil:
			p.Fprintf(&b, "rule %s: ERROR: %v\n", res.RuleID, res.Err)
		case len(res.Violations) == 0:
			p.Fprintf(&b, "rule %s: PASS\n", res.RuleID)
		default:
			p.Fprintf(&b, "rule %s: FAIL (%d violations)\n", res.RuleID, len(res.Violations))
			for _, v := range res.Violations {
				fmt.Fprintf(&b, "  - %s [keys: %s]\n", v.Message, strings.Join(v.Keys, ", "))
			}
		}
	}

	return b.String()
}
