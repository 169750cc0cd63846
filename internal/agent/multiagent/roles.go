// Package multiagent fans an incident query out to specialized reasoning
// agents and collects their structured findings. Each role is a variant in
// a closed set bound to a fixed prompt strategy and claim schema; roles are
// independent and may run concurrently over identical inputs.
package multiagent

import (
	"fmt"
	"strings"

	"github.com/moolen/triage/internal/models"
)

// roleSpec binds a role to its prompt framing and the labeled fields its
// output must carry.
type roleSpec struct {
	role   models.AgentRole
	system string
	// fields are the labeled output fields, in the order the prompt asks
	// for them. Every spec additionally gets CITES and CONFIDENCE.
	fields []string
}

var roleSpecs = map[models.AgentRole]roleSpec{
	models.RoleRootCause: {
		role: models.RoleRootCause,
		system: `You are the Root Cause Agent in a multi-agent incident analysis system.

## Your Role

Identify the most plausible root cause of the incident from the log and the
evidence fragments. You do NOT assess user impact and you do NOT propose
remediation; other agents own those lenses.

## Rules

- Ground every statement in the log or a cited evidence fragment.
- If the evidence is insufficient, say so in TRIGGER and lower CONFIDENCE.
- Cite only fragment ids that appear in the EVIDENCE section.`,
		fields: []string{"SYSTEM", "TRIGGER", "CHAIN", "REASONING"},
	},
	models.RoleImpact: {
		role: models.RoleImpact,
		system: `You are the Impact Agent in a multi-agent incident analysis system.

## Your Role

Assess the blast radius: which systems and users are affected, how badly,
and for how long. You do NOT diagnose the root cause and you do NOT propose
remediation.

## Rules

- SEVERITY must be one of: CRITICAL, ERROR, WARNING, INFO.
- List affected systems by their canonical names where known.
- Cite only fragment ids that appear in the EVIDENCE section.`,
		fields: []string{"PRIMARY_SYSTEM", "AFFECTED_SYSTEMS", "USER_IMPACT", "DURATION", "SEVERITY"},
	},
	models.RoleActions: {
		role: models.RoleActions,
		system: `You are the Actions Agent in a multi-agent incident analysis system.

## Your Role

Produce an ordered remediation plan: what to do right now, what to do in
the next hours, and what prevents recurrence. You do NOT re-derive the root
cause; take the retrieved runbooks as the primary source of steps.

## Rules

- IMMEDIATE steps must be safe to execute under incident pressure.
- Separate steps with semicolons, most urgent first.
- Cite only fragment ids that appear in the EVIDENCE section.`,
		fields: []string{"TARGET_SYSTEM", "IMMEDIATE", "SHORT_TERM", "PREVENTIVE", "ROLLBACK"},
	},
	models.RoleKnowledge: {
		role: models.RoleKnowledge,
		system: `You are the Knowledge Agent in a multi-agent incident analysis system.

## Your Role

Match the incident against organizational memory: which past incidents look
similar, which runbook applies, and which system the knowledge base suggests
is involved. You do NOT diagnose, assess impact, or plan remediation.

## Rules

- MATCHED_RUNBOOK is the fragment id of the best-matching runbook, or "none".
- SIMILAR_INCIDENTS is a comma-separated list of incident fragment ids.
- Cite only fragment ids that appear in the EVIDENCE section.`,
		fields: []string{"SUGGESTED_SYSTEM", "MATCHED_RUNBOOK", "SIMILAR_INCIDENTS", "REASONING"},
	},
	models.RoleGeneralist: {
		role: models.RoleGeneralist,
		system: `You are an incident analysis agent.

## Your Role

Produce a compact full diagnosis of the incident in one pass: what happened,
why, who is affected, and what to do first.

## Rules

- SEVERITY must be one of: CRITICAL, ERROR, WARNING, INFO.
- Ground every statement in the log or a cited evidence fragment.
- Cite only fragment ids that appear in the EVIDENCE section.`,
		fields: []string{"SUMMARY", "ROOT_CAUSE", "IMPACT", "IMMEDIATE_ACTION", "SEVERITY"},
	},
}

// buildUserPrompt renders the shared incident context every agent receives:
// the redacted log, detection results, and the labeled evidence fragments.
func buildUserPrompt(spec roleSpec, query *models.Query, retrieval *models.RetrievalResult) string {
	var b strings.Builder

	b.WriteString("## Incident Log\n\n")
	b.WriteString(query.RedactedText)
	b.WriteString("\n\n## Detected Systems\n\n")
	if len(query.DetectedSystems) == 0 {
		b.WriteString("none (unknown system)\n")
	} else {
		for _, s := range query.DetectedSystems {
			fmt.Fprintf(&b, "- %s (matched %q, confidence %.2f)\n", s.CanonicalName, s.MatchedAlias, s.Confidence)
		}
	}

	b.WriteString("\n## EVIDENCE\n\n")
	if len(retrieval.Fragments) == 0 {
		b.WriteString("no knowledge fragments retrieved\n")
	}
	for _, sf := range retrieval.Fragments {
		fmt.Fprintf(&b, "[%s] (%s, score %.2f)\n%s\n\n", sf.Fragment.ID, sf.Fragment.SourceKind, sf.Score, sf.Fragment.Text)
	}

	b.WriteString("## Output Format\n\nRespond with exactly these labeled lines and nothing else:\n\n")
	for _, f := range spec.fields {
		fmt.Fprintf(&b, "%s: <%s>\n", f, strings.ToLower(strings.ReplaceAll(f, "_", " ")))
	}
	b.WriteString("CITES: <comma-separated fragment ids from EVIDENCE>\n")
	b.WriteString("CONFIDENCE: <0.0 to 1.0>\n")

	return b.String()
}
