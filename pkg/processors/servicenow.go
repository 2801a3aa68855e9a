package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pratap1297/rag-new-sub000/pkg/ragerror"
)

// ServiceNowProcessor handles JSON exports of ServiceNow tickets. Each
// ticket becomes one pre-chunk carrying its number and state.
//
// Accepted shapes: a top-level {"records": [...]} object, the result
// envelope {"result": [...]}, or a bare array of ticket objects.
type ServiceNowProcessor struct{}

type serviceNowTicket struct {
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	State            string `json:"state"`
	Priority         string `json:"priority"`
	Category         string `json:"category"`
	AssignedTo       string `json:"assigned_to"`
	OpenedAt         string `json:"opened_at"`
	ResolvedAt       string `json:"resolved_at"`
	CloseNotes       string `json:"close_notes"`
	WorkNotes        string `json:"work_notes"`
}

func (p *ServiceNowProcessor) CanProcess(path string) bool {
	if extOf(path) != ".json" {
		return false
	}
	base := strings.ToLower(path)
	if strings.Contains(base, "servicenow") || strings.Contains(base, "incident") {
		return true
	}
	// Sniff the head of the file for ticket fields.
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()
	head := make([]byte, 4096)
	n, _ := file.Read(head)
	return strings.Contains(string(head[:n]), "short_description")
}

func (p *ServiceNowProcessor) Extensions() []string {
	return []string{".json"}
}

func (p *ServiceNowProcessor) Process(ctx context.Context, path string, meta map[string]any) (*ProcessResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_servicenow", "failed to read ticket export", err).
			WithDetail("path", path)
	}

	tickets, err := decodeTickets(data)
	if err != nil {
		return nil, ragerror.NewIngestion("processors", "process_servicenow", "failed to decode ticket export", err).
			WithDetail("path", path)
	}
	if len(tickets) == 0 {
		return &ProcessResult{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	var textParts []string
	chunks := make([]ProcessedChunk, 0, len(tickets))
	for _, ticket := range tickets {
		text := renderTicket(ticket)
		if text == "" {
			continue
		}
		textParts = append(textParts, text)

		chunkMeta := map[string]any{"ticket_number": ticket.Number}
		if ticket.State != "" {
			chunkMeta["ticket_state"] = ticket.State
		}
		if ticket.Category != "" {
			chunkMeta["ticket_category"] = ticket.Category
		}
		chunks = append(chunks, ProcessedChunk{Text: text, Metadata: chunkMeta})
	}

	if len(chunks) == 0 {
		return &ProcessResult{Status: StatusSkipped, Reason: "no_content"}, nil
	}

	metadata := fileBaseMetadata(path, "servicenow")
	metadata["ticket_count"] = len(chunks)

	return &ProcessResult{
		Status:   StatusSuccess,
		Text:     strings.Join(textParts, "\n\n"),
		Chunks:   chunks,
		Metadata: metadata,
	}, nil
}

func decodeTickets(data []byte) ([]serviceNowTicket, error) {
	var envelope struct {
		Records []serviceNowTicket `json:"records"`
		Result  []serviceNowTicket `json:"result"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if len(envelope.Records) > 0 {
			return envelope.Records, nil
		}
		if len(envelope.Result) > 0 {
			return envelope.Result, nil
		}
	}

	var bare []serviceNowTicket
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

func renderTicket(t serviceNowTicket) string {
	var b strings.Builder
	if t.Number != "" {
		fmt.Fprintf(&b, "Ticket %s", t.Number)
		if t.State != "" {
			fmt.Fprintf(&b, " (%s)", t.State)
		}
		b.WriteString("\n")
	}
	if t.ShortDescription != "" {
		fmt.Fprintf(&b, "Summary: %s\n", t.ShortDescription)
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", t.Description)
	}
	if t.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", t.Priority)
	}
	if t.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", t.Category)
	}
	if t.AssignedTo != "" {
		fmt.Fprintf(&b, "Assigned to: %s\n", t.AssignedTo)
	}
	if t.CloseNotes != "" {
		fmt.Fprintf(&b, "Resolution: %s\n", t.CloseNotes)
	}
	if t.WorkNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", t.WorkNotes)
	}
	return strings.TrimSpace(b.String())
}
