package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for table extraction.
// 2.5-flash is fast and good at documents.
const DefaultModelName = "gemini-2.5-flash"

// GeminiExtractor extracts statement tables by sending the PDF to Gemini
// and asking for the raw table cells as strict JSON. It performs no
// interpretation: dates, amounts and headers come back exactly as printed
// and are validated downstream.
type GeminiExtractor struct {
	Model string
}

// NewGeminiExtractor returns an extractor using the given model name, or
// DefaultModelName when empty.
func NewGeminiExtractor(model string) *GeminiExtractor {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{Model: model}
}

const extractionPrompt = "You are a table extractor for scanned bank statement PDFs.\n\n" +
	"Task:\n" +
	"- Extract EVERY table on EVERY page of the attached statement.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of pages; each page is an array of tables; each table\n" +
	"  is an array of rows; each row is an array of cell strings.\n\n" +
	"Rules:\n" +
	"- Reproduce cell text EXACTLY as printed, including dates, thousands\n" +
	"  separators and the literal text \"None\" in empty amount cells.\n" +
	"- Use \"\" for blank cells. Do NOT reorder, merge or interpret columns.\n" +
	"- Include header rows as ordinary rows.\n" +
	"- Pages without tables are empty arrays.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// ExtractTables implements Extractor.
func (e *GeminiExtractor) ExtractTables(ctx context.Context, data []byte) ([]Page, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("ExtractTables: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, e.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("ExtractTables: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("ExtractTables: empty response from model")
	}

	return decodePages(cleanModelJSON(rawText))
}

func decodePages(clean string) ([]Page, error) {
	var raw [][][][]string
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("decodePages: unmarshal JSON: %w", err)
	}
	pages := make([]Page, 0, len(raw))
	for _, p := range raw {
		page := Page{}
		for _, t := range p {
			page.Tables = append(page.Tables, Table(t))
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the no-fences instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only from the first '[' to the last ']' if junk remains.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
