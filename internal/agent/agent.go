// Package agent implements the veterinary assistant: a thin
// conversation layer that grounds every answer in material retrieved
// through the knowledge facade.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quickAIautomation/quickvetpro/internal/config"
	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
	"github.com/quickAIautomation/quickvetpro/internal/security"
)

const systemPrompt = `Você é um assistente veterinário para profissionais da área. Responda com base EXCLUSIVAMENTE no material de referência fornecido.

Regras:
- Cite doses, protocolos e valores de referência exatamente como aparecem no material.
- Se o material não cobrir a pergunta, diga isso claramente em vez de especular.
- Inclua unidades em todas as doses e medidas.
- Lembre o profissional de confirmar cálculos de dose para a espécie e o peso do paciente.`

// refusalAnswer is returned without calling the model when the question
// looks like a prompt-injection attempt.
const refusalAnswer = "Não posso processar essa pergunta. Reformule-a como uma consulta veterinária sobre o material de referência."

// Knowledge is the retrieval surface the agent consumes.
type Knowledge interface {
	Query(ctx context.Context, query string, mode knowledge.Mode) knowledge.QueryResult
}

// Agent answers veterinary questions grounded in the knowledge corpus.
type Agent struct {
	cfg       *config.Config
	knowledge Knowledge
	validator *security.PromptValidator
	generate  generateFunc
	logger    *slog.Logger
}

// generateFunc produces the model answer for a prompt. Production uses
// genkit; tests script it.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// New creates an Agent.
func New(cfg *config.Config, g *genkit.Genkit, k Knowledge, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:       cfg,
		knowledge: k,
		validator: security.NewPromptValidator(),
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := genkit.Generate(ctx, g,
				ai.WithModelName(cfg.FullModelName()),
				ai.WithSystem(systemPrompt),
				ai.WithPrompt(prompt),
			)
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		},
		logger: logger,
	}
}

// Answer responds to a question. Retrieval runs in auto mode; when it
// fails the agent still answers but says the reference material was
// unavailable instead of inventing content.
func (a *Agent) Answer(ctx context.Context, question string) (string, error) {
	if check := a.validator.Validate(question); !check.Safe {
		a.logger.Warn("question rejected by prompt validator",
			"patterns", len(check.Patterns))
		return refusalAnswer, nil
	}

	result := a.knowledge.Query(ctx, question, knowledge.ModeAuto)

	var prompt strings.Builder
	if result.Success && result.Content != "" {
		prompt.WriteString("Material de referência:\n\n")
		prompt.WriteString(result.Content)
		prompt.WriteString("\n\n")
	} else {
		a.logger.Warn("retrieval failed, answering without context",
			"kind", result.FailureKind)
		prompt.WriteString("Material de referência: INDISPONÍVEL. Informe o usuário de que a base de conhecimento não pôde ser consultada.\n\n")
	}
	prompt.WriteString("Pergunta: ")
	prompt.WriteString(question)

	answer, err := a.generate(ctx, prompt.String())
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}

	a.logger.Debug("agent answer",
		"mode", result.Mode, "grounded", result.Success,
		"question_length", len(question))
	return answer, nil
}
