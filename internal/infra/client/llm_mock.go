package client

import (
	"context"
	"strings"
)

// MockLLM is the generator used when LLM_PROVIDER=mock. It answers guide
// prompts with a fixed well-formed JSON guide and everything else with a
// canned Portuguese reply. Local development and CI run on it so no API
// key is ever needed.
type MockLLM struct{}

// NewMockLLM creates a MockLLM.
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

const mockGuideJSON = `{
  "summary": "Passo a passo para resolver esta pendência da sua formalização.",
  "steps": [
    {"number": 1, "title": "Separe seus documentos", "description": "Reúna CPF e comprovante de endereço antes de sair de casa."},
    {"number": 2, "title": "Procure o órgão responsável", "description": "Vá ao sindicato rural ou à EMATER da sua cidade e explique o que você precisa."},
    {"number": 3, "title": "Guarde o comprovante", "description": "Peça um protocolo ou comprovante e guarde junto com seus outros documentos."}
  ],
  "estimated_time_days": 7,
  "where_to_go": "Sindicato rural ou escritório da EMATER mais próximo",
  "confidence_level": "medium"
}`

const mockChatReply = "Entendi! Para vender ao PNAE o mais importante é manter " +
	"seus documentos em dia: CPF regular, CAF (antiga DAP) e conta bancária no " +
	"seu nome. Pergunte \"o que falta?\" no chat guiado para ver suas pendências."

// Generate returns a deterministic reply based on the prompt shape.
func (m *MockLLM) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(strings.ToLower(prompt), "json") {
		return mockGuideJSON, nil
	}
	return mockChatReply, nil
}
