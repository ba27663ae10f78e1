package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/port"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// ChatCompleter is the slice of the OpenAI client the pipeline needs.
// Tests substitute a deterministic fake.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Pipeline turns a stored proforma or receipt document into structured
// metadata with a confidence score. It never returns an error: external
// failures degrade the extraction_status instead of blocking the
// workflow.
type Pipeline struct {
	docs            port.DocumentStore
	ai              ChatCompleter
	model           string
	confidenceFloor float64
	logger          *zap.Logger
}

// New creates an extraction pipeline.
func New(docs port.DocumentStore, ai ChatCompleter, model string, confidenceFloor float64, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		docs:            docs,
		ai:              ai,
		model:           model,
		confidenceFloor: confidenceFloor,
		logger:          logger,
	}
}

// payload mirrors the JSON schema the model is asked to produce.
type payload struct {
	VendorName    string            `json:"vendor_name"`
	VendorEmail   string            `json:"vendor_email"`
	VendorAddress string            `json:"vendor_address"`
	Items         []entity.LineItem `json:"items"`
	Subtotal      float64           `json:"subtotal"`
	Tax           float64           `json:"tax"`
	TotalAmount   float64           `json:"total_amount"`
	Currency      string            `json:"currency"`
	InvoiceNumber string            `json:"invoice_number"`
	InvoiceDate   string            `json:"invoice_date"`
	PaymentTerms  string            `json:"payment_terms"`
	Confidence    float64           `json:"confidence"`
}

// Extract implements port.Extractor.
func (p *Pipeline) Extract(ctx context.Context, handle string) *entity.ExtractedMetadata {
	p.logger.Info("Extracting document metadata", zap.String("handle", handle))

	content, err := p.docs.Fetch(ctx, handle)
	if err != nil {
		return p.failed(handle, fmt.Errorf("fetch document: %w", err))
	}

	images, err := normalizeToImages(content)
	if err != nil {
		return p.failed(handle, fmt.Errorf("normalize document: %w", err))
	}

	resp, err := p.ai.CreateChatCompletion(ctx, p.buildRequest(images))
	if err != nil {
		return p.failed(handle, fmt.Errorf("AI extraction call: %w", err))
	}
	if len(resp.Choices) == 0 {
		return p.failed(handle, fmt.Errorf("empty AI response"))
	}

	var out payload
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return p.failed(handle, fmt.Errorf("parse extraction result: %w", err))
	}

	md := &entity.ExtractedMetadata{
		VendorName:    out.VendorName,
		VendorEmail:   out.VendorEmail,
		VendorAddress: out.VendorAddress,
		Items:         out.Items,
		Subtotal:      out.Subtotal,
		Tax:           out.Tax,
		TotalAmount:   out.TotalAmount,
		Currency:      out.Currency,
		InvoiceNumber: out.InvoiceNumber,
		InvoiceDate:   out.InvoiceDate,
		PaymentTerms:  out.PaymentTerms,
		Confidence:    clamp01(out.Confidence),
		Status:        entity.ExtractionSucceeded,
		CreatedAt:     time.Now(),
	}

	if md.VendorName == "" && md.TotalAmount == 0 && len(md.Items) == 0 {
		md.Status = entity.ExtractionFailed
		md.Error = "no fields recoverable from document"
	} else if md.VendorName == "" || md.TotalAmount == 0 || md.Confidence < p.confidenceFloor {
		md.Status = entity.ExtractionPartial
	}

	p.logger.Info("Document metadata extracted",
		zap.String("handle", handle),
		zap.String("status", md.Status),
		zap.String("vendor", md.VendorName),
		zap.Float64("total", md.TotalAmount),
		zap.Float64("confidence", md.Confidence))

	return md
}

func (p *Pipeline) failed(handle string, err error) *entity.ExtractedMetadata {
	p.logger.Warn("Extraction degraded to failed",
		zap.String("handle", handle),
		zap.Error(err))
	return &entity.ExtractedMetadata{
		Status:    entity.ExtractionFailed,
		Error:     err.Error(),
		CreatedAt: time.Now(),
	}
}

func (p *Pipeline) buildRequest(images [][]byte) openai.ChatCompletionRequest {
	contentParts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: extractionPrompt,
		},
	}
	for _, img := range images {
		contentParts = append(contentParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(img)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		MaxTokens:   4096,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert at reading invoices and receipts. Extract every field accurately and always respond with valid JSON.",
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

const extractionPrompt = `Extract structured data from this document (proforma invoice or receipt).

Return JSON with these exact fields:
- vendor_name: string
- vendor_email: string (empty if not found)
- vendor_address: string (empty if not found)
- items: array of {name, quantity, unit_price, total}
- subtotal: number
- tax: number (0 if not found)
- total_amount: number
- currency: string (USD, EUR, etc.)
- invoice_number: string (empty if not found)
- invoice_date: string in YYYY-MM-DD format (empty if not found)
- payment_terms: string (empty if not found)
- confidence: number between 0 and 1 reflecting how certain you are of the extracted values

If a field cannot be determined, use the empty string or 0.`

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
