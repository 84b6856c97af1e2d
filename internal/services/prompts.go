package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roshni/backend/internal/models"
)

// LLM prompt constants for report generation

const (
	// INCIDENT_REPORT_PROMPT wraps the JSON array of an incident's logs
	INCIDENT_REPORT_PROMPT = `You are an emergency incident reporting AI writing the official report for a disaster incident.

CRITICAL INSTRUCTIONS:
- Write a professional, factual and chronological incident report
- Use ONLY the information contained in the logs below
- No assumptions, no hallucinations: do not invent names, numbers, places or times
- If no log supports a section, state that no information was recorded

REPORT SECTIONS:
1. Summary
2. Timeline of Events
3. Civilian Inputs
4. Responder Actions
5. Environmental Factors
6. Conclusion

Logs: %s`

	// CHUNK_SUMMARY_PROMPT condenses one ordered slice of logs when the full
	// log set is too large for a single prompt
	CHUNK_SUMMARY_PROMPT = `You are an emergency incident reporting AI preparing notes for an incident report.

CRITICAL INSTRUCTIONS:
- Summarize ONLY the logs below, which are part %d of %d of the incident's logs in chronological order
- Keep every timestamp, actor, location, measurement and action that appears in the logs
- No assumptions, no hallucinations
- Return plain text notes in chronological order, nothing else

Logs: %s`

	// CHUNKED_REPORT_PROMPT builds the final report from chunk notes
	CHUNKED_REPORT_PROMPT = `You are an emergency incident reporting AI writing the official report for a disaster incident.

CRITICAL INSTRUCTIONS:
- Write a professional, factual and chronological incident report
- Use ONLY the information contained in the notes below; they summarize the incident's logs in chronological order
- No assumptions, no hallucinations: do not invent names, numbers, places or times
- If no note supports a section, state that no information was recorded

REPORT SECTIONS:
1. Summary
2. Timeline of Events
3. Civilian Inputs
4. Responder Actions
5. Environmental Factors
6. Conclusion

Notes:
%s`

	// MERGE_NOTES_PROMPT condenses consecutive chunk notes when all notes
	// together are too large for the final report prompt
	MERGE_NOTES_PROMPT = `You are an emergency incident reporting AI preparing notes for an incident report.

CRITICAL INSTRUCTIONS:
- Merge the notes below, which cover consecutive parts of the incident's logs in chronological order, into one set of notes
- Keep every timestamp, actor, location, measurement and action that appears in the notes
- No assumptions, no hallucinations
- Return plain text notes in chronological order, nothing else

Notes:
%s`
)

// LogProjection is the compact form of a log embedded in prompts. Field
// order is part of the prompt format.
type LogProjection struct {
	LogID           string          `json:"log_id"`
	Timestamp       *string         `json:"timestamp"`
	EventType       string          `json:"event_type"`
	SourceType      string          `json:"source_type"`
	Data            json.RawMessage `json:"data"`
	CreatedByUserID *string         `json:"created_by_user_id"`
}

// ProjectLog converts a stored log into its prompt form.
func ProjectLog(log models.DisasterLog) LogProjection {
	p := LogProjection{
		LogID:      log.LogID.String(),
		EventType:  log.EventType,
		SourceType: log.SourceType,
	}
	if log.Timestamp != nil {
		ts := log.Timestamp.Format(time.RFC3339Nano)
		p.Timestamp = &ts
	}
	if len(log.Data) > 0 {
		p.Data = json.RawMessage(log.Data)
	}
	if log.CreatedByUserID != nil {
		id := log.CreatedByUserID.String()
		p.CreatedByUserID = &id
	}
	return p
}

// ProjectLogs keeps the input order.
func ProjectLogs(logs []models.DisasterLog) []LogProjection {
	projections := make([]LogProjection, len(logs))
	for i, log := range logs {
		projections[i] = ProjectLog(log)
	}
	return projections
}

// BuildReportPrompt returns the report prompt for logs, which must already be
// in chronological order. The same logs always give the same prompt.
func BuildReportPrompt(logs []models.DisasterLog) (string, error) {
	payload, err := json.Marshal(ProjectLogs(logs))
	if err != nil {
		return "", fmt.Errorf("failed to serialize logs: %w", err)
	}
	return fmt.Sprintf(INCIDENT_REPORT_PROMPT, payload), nil
}

// BuildChunkSummaryPrompt returns the prompt for chunk index (1-based) of total.
func BuildChunkSummaryPrompt(chunk []LogProjection, index, total int) (string, error) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return "", fmt.Errorf("failed to serialize chunk %d: %w", index, err)
	}
	return fmt.Sprintf(CHUNK_SUMMARY_PROMPT, index, total, payload), nil
}

// BuildChunkedReportPrompt embeds the ordered chunk notes.
func BuildChunkedReportPrompt(summaries []string) string {
	return fmt.Sprintf(CHUNKED_REPORT_PROMPT, formatNotes(summaries))
}

// BuildMergeNotesPrompt asks for consecutive notes to be merged into one.
func BuildMergeNotesPrompt(notes []string) string {
	return fmt.Sprintf(MERGE_NOTES_PROMPT, formatNotes(notes))
}

func formatNotes(notes []string) string {
	var b strings.Builder
	for i, s := range notes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Part %d of %d]\n%s", i+1, len(notes), strings.TrimSpace(s))
	}
	return b.String()
}

// chunkPromptOverhead is the size of a chunk summary prompt without its logs
// when there are at most maxChunks chunks.
func chunkPromptOverhead(maxChunks int) int {
	return len(fmt.Sprintf(CHUNK_SUMMARY_PROMPT, maxChunks, maxChunks, ""))
}

// GroupNotes splits notes into consecutive groups whose merge prompt stays
// within maxBytes. Every group but the last holds at least two notes, so
// merging each group always shortens the list.
func GroupNotes(notes []string, maxBytes int) [][]string {
	var groups [][]string
	var current []string
	for _, note := range notes {
		if len(current) >= 2 {
			candidate := append(current[:len(current):len(current)], note)
			if len(BuildMergeNotesPrompt(candidate)) > maxBytes {
				groups = append(groups, current)
				current = nil
			}
		}
		current = append(current, note)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// ChunkProjections splits projections into ordered chunks whose serialized
// size stays within maxBytes. A single projection larger than maxBytes gets
// a chunk of its own.
func ChunkProjections(projections []LogProjection, maxBytes int) ([][]LogProjection, error) {
	if maxBytes <= 0 {
		return [][]LogProjection{projections}, nil
	}

	var chunks [][]LogProjection
	var current []LogProjection
	size := 2 // "[]"
	for _, p := range projections {
		encoded, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize log %s: %w", p.LogID, err)
		}
		n := len(encoded) + 1 // separator
		if len(current) > 0 && size+n > maxBytes {
			chunks = append(chunks, current)
			current = nil
			size = 2
		}
		current = append(current, p)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}
