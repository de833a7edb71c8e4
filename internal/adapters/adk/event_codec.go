package adk

import (
	"encoding/json"

	"google.golang.org/adk/session"
	"google.golang.org/genai"

	domainsession "finvisor/internal/domain/session"
	"finvisor/pkg/errors"
)

// reencode copies src into dst through its JSON form
func reencode(src, dst interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func toDomainUsage(u *genai.GenerateContentResponseUsageMetadata) *domainsession.UsageMetadata {
	if u == nil {
		return nil
	}
	return &domainsession.UsageMetadata{
		PromptTokenCount:     u.PromptTokenCount,
		CandidatesTokenCount: u.CandidatesTokenCount,
		TotalTokenCount:      u.TotalTokenCount,
	}
}

func toGenaiUsage(u *domainsession.UsageMetadata) *genai.GenerateContentResponseUsageMetadata {
	if u == nil {
		return nil
	}
	return &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     u.PromptTokenCount,
		CandidatesTokenCount: u.CandidatesTokenCount,
		TotalTokenCount:      u.TotalTokenCount,
	}
}

// toDomainEvent flattens an ADK event for storage. Content is kept as its
// JSON object so the session list can read the first user message.
func toDomainEvent(ev *session.Event) (*domainsession.Event, error) {
	content := map[string]interface{}{}
	if ev.LLMResponse.Content != nil {
		if err := reencode(ev.LLMResponse.Content, &content); err != nil {
			return nil, errors.Wrap(err, "encode content")
		}
	}

	a := ev.Actions
	return &domainsession.Event{
		EventID:      ev.ID,
		InvocationID: ev.InvocationID,
		Author:       ev.Author,
		Content:      content,
		Timestamp:    ev.Timestamp,
		Branch:       ev.Branch,
		Partial:      ev.LLMResponse.Partial,
		TurnComplete: ev.TurnComplete,
		Actions: domainsession.EventActions{
			TransferToAgent:   a.TransferToAgent,
			Escalate:          a.Escalate,
			SkipSummarization: a.SkipSummarization,
			StateDelta:        a.StateDelta,
		},
		UsageMetadata: toDomainUsage(ev.UsageMetadata),
	}, nil
}

// toADKEvent rebuilds a stored event. Content that no longer decodes is
// left partially filled rather than failing the whole session load.
func toADKEvent(d *domainsession.Event) *session.Event {
	ev := &session.Event{
		ID:           d.EventID,
		InvocationID: d.InvocationID,
		Author:       d.Author,
		Timestamp:    d.Timestamp,
		Branch:       d.Branch,
		Actions: session.EventActions{
			TransferToAgent:   d.Actions.TransferToAgent,
			Escalate:          d.Actions.Escalate,
			SkipSummarization: d.Actions.SkipSummarization,
			StateDelta:        d.Actions.StateDelta,
		},
	}
	if len(d.Content) > 0 {
		content := &genai.Content{}
		_ = reencode(d.Content, content)
		ev.LLMResponse.Content = content
	}
	ev.LLMResponse.Partial = d.Partial
	ev.LLMResponse.TurnComplete = d.TurnComplete
	ev.LLMResponse.UsageMetadata = toGenaiUsage(d.UsageMetadata)
	return ev
}
