package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON object out of content that may be wrapped in
// prose or markdown code fences, by scanning for the outermost braces.
func ExtractJSON(content string) string {
	s := content
	if idx := strings.Index(s, "{"); idx >= 0 {
		s = s[idx:]
	}
	if idx := strings.LastIndex(s, "}"); idx >= 0 {
		s = s[:idx+1]
	}
	return s
}

// CompleteSchema runs req against provider and unmarshals the response into
// target. If the response is not valid JSON for target, it issues one
// repair retry describing the schema and the malformed response. A second
// failure is permanent — the caller should fall back rather than retry.
func CompleteSchema(ctx context.Context, provider Provider, req CompletionRequest, schemaDescription string, target any) error {
	req.JSONMode = true

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ExtractJSON(resp.Content)), target); err == nil {
		return nil
	}

	repairReq := req
	repairReq.Messages = append(append([]Message{}, req.Messages...), Message{
		Role: RoleUser,
		Content: fmt.Sprintf(
			"Your previous response was not valid JSON matching this schema:\n%s\n\nPrevious response:\n%s\n\nRespond with corrected JSON only, no prose.",
			schemaDescription, resp.Content,
		),
	})

	repairResp, err := provider.Complete(ctx, repairReq)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ExtractJSON(repairResp.Content)), target); err != nil {
		return fmt.Errorf("schema repair failed: %w", err)
	}
	return nil
}
