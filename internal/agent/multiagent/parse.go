package multiagent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/moolen/triage/internal/models"
)

var labelRe = regexp.MustCompile(`^([A-Z][A-Z_]*):\s*(.*)$`)

// parseFinding turns an agent's labeled-line output into a structured
// finding. Unknown labels are kept in the claim; continuation lines are
// appended to the preceding field. Cited fragment ids are validated against
// the retrieval result so an agent cannot invent evidence.
func parseFinding(spec roleSpec, output string, retrieval *models.RetrievalResult) (models.AgentFinding, error) {
	fields := make(map[string]string)
	var lastKey string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := labelRe.FindStringSubmatch(trimmed); m != nil {
			lastKey = m[1]
			fields[lastKey] = strings.TrimSpace(m[2])
			continue
		}
		if lastKey != "" {
			fields[lastKey] = strings.TrimSpace(fields[lastKey] + " " + trimmed)
		}
	}

	if len(fields) == 0 {
		return models.AgentFinding{}, fmt.Errorf("no labeled fields in agent output")
	}

	finding := models.AgentFinding{
		Role:  spec.role,
		Claim: make(map[string]string),
	}

	for key, value := range fields {
		switch key {
		case "CITES":
			finding.SupportingFragmentIDs = parseCites(value, retrieval)
		case "CONFIDENCE":
			finding.Confidence = parseConfidence(value)
		default:
			if value != "" {
				finding.Claim[strings.ToLower(key)] = value
			}
		}
	}

	// A response that carries none of the role's required fields is not
	// usable as a claim.
	usable := false
	for _, f := range spec.fields {
		if finding.Claim[strings.ToLower(f)] != "" {
			usable = true
			break
		}
	}
	if !usable {
		return models.AgentFinding{}, fmt.Errorf("agent output missing all required fields for role %s", spec.role)
	}
	return finding, nil
}

// parseCites keeps only ids that were actually retrieved, sorted ascending.
func parseCites(value string, retrieval *models.RetrievalResult) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(value, ",") {
		id := strings.Trim(strings.TrimSpace(raw), "[]")
		if id == "" || strings.EqualFold(id, "none") || seen[id] {
			continue
		}
		if retrieval.FragmentByID(id) == nil {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// parseConfidence clamps the self-reported confidence into [0,1]; garbage
// parses as 0.
func parseConfidence(value string) float64 {
	value = strings.TrimSuffix(strings.TrimSpace(value), "%")
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
