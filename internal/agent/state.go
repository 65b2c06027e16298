package agent

import (
	"fmt"
	"strings"
)

// State is a control loop state.
type State int

const (
	StateStart State = iota
	StateAwaitingResponse
	StateFunctionCallPending
	StateFinalAnswer
	StateRoundExhausted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateFunctionCallPending:
		return "function_call_pending"
	case StateFinalAnswer:
		return "final_answer"
	case StateRoundExhausted:
		return "round_exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolResult is the rendered outcome of one tool call.
type ToolResult struct {
	Name   string
	CallID string
	Text   string
}

// Cursor is the conversation state threaded between rounds. The backend
// keeps history under PreviousTurnID; PendingResults are not stored by the
// backend and must be sent with the next turn.
type Cursor struct {
	PreviousTurnID string
	PendingResults []ToolResult
}

const (
	resultsHeader = "=== TOOL RESULTS ==="
	resultsFooter = "=== END TOOL RESULTS ==="

	resultsInstruction = "Use only the tool results above. Do not invent tool output. " +
		"Call another tool if you need more information, otherwise reply with your final answer."

	continuationPrompt = "Your previous reply contained neither a tool call nor an answer. " +
		"Call one of the available tools or reply with your final answer."
)

// resultsBlock serializes pending results into the next turn's input.
func resultsBlock(results []ToolResult) string {
	var b strings.Builder
	b.WriteString(resultsHeader)
	b.WriteString("\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Name)
		if r.CallID != "" {
			fmt.Fprintf(&b, " (call %s)", r.CallID)
		}
		b.WriteString("\n")
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	b.WriteString(resultsFooter)
	b.WriteString("\n")
	b.WriteString(resultsInstruction)
	return b.String()
}

// IncompleteMessage is returned when the round budget runs out.
func IncompleteMessage(maxRounds int) string {
	return fmt.Sprintf("%sreached maximum rounds (%d) without a final answer. Retry with a larger round budget.", IncompletePrefix, maxRounds)
}
