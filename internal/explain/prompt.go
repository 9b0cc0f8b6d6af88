package explain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vyuha/vyuha-lens/internal/ai"
)

// DefaultQuestion is asked when the caller does not supply one.
const DefaultQuestion = "Explain how the first entity is connected to the last one along this path."

const systemPrompt = "You are a knowledge-graph analyst. You are given a path " +
	"through a knowledge graph as a list of entities and the relations " +
	"between them. Explain the chain of relations in plain language, step " +
	"by step, citing entity names. Only use facts present in the data; say " +
	"so when a relation has no description."

// PathPrompt builds the conversation for explaining one path.
func PathPrompt(sub Subgraph, question string) ([]ai.Message, error) {
	if strings.TrimSpace(question) == "" {
		question = DefaultQuestion
	}

	names := make(map[string]string, len(sub.Nodes))
	chain := make([]string, len(sub.Nodes))
	for i, n := range sub.Nodes {
		names[n.ID] = n.Name
		chain[i] = n.Name
	}

	var context strings.Builder
	context.WriteString(fmt.Sprintf("Path: %s\n", strings.Join(chain, " -> ")))

	context.WriteString("\nEntities:\n")
	for _, n := range sub.Nodes {
		context.WriteString(fmt.Sprintf("- %s [%s]", n.Name, n.Type))
		if n.Description != "" {
			context.WriteString(": " + n.Description)
		}
		context.WriteString("\n")
	}

	if len(sub.Edges) > 0 {
		context.WriteString("\nRelations:\n")
		for _, e := range sub.Edges {
			context.WriteString(fmt.Sprintf("- %s --%s--> %s", nameOr(names, e.Source), e.RelationType, nameOr(names, e.Target)))
			if e.Score > 0 {
				context.WriteString(fmt.Sprintf(" (score=%.2f)", e.Score))
			}
			if e.Description != "" {
				context.WriteString(": " + e.Description)
			}
			context.WriteString("\n")
		}
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("explain: marshal subgraph: %w", err)
	}
	context.WriteString(fmt.Sprintf("\nRaw subgraph:\n```json\n%s\n```\n", raw))
	context.WriteString("\nQuestion: " + question + "\n")

	return ai.BuildConversation(systemPrompt, ai.Message{
		Role:    ai.RoleUser,
		Content: context.String(),
	}), nil
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}
