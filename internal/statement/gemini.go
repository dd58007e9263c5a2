package statement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.0-flash"

const statementDateFormat = "2006-01-02"

// GeminiParser is the production Parser implementation. It asks Gemini
// to convert decoded 1C ClientBankExchange text into a strict JSON
// payload, so this package never hand-parses the wire format itself.
type GeminiParser struct {
	client *genai.Client
	model  string
}

// NewGeminiParser creates a parser using the given client and model.
// An empty model falls back to DefaultModelName.
func NewGeminiParser(client *genai.Client, model string) *GeminiParser {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiParser{client: client, model: model}
}

// geminiPayload is the strict JSON shape the model is instructed to return.
type geminiPayload struct {
	Error *struct {
		Section string `json:"section"`
		Line    int    `json:"line"`
		Message string `json:"message"`
	} `json:"error"`
	Account *struct {
		Number        string         `json:"number"`
		RoutingNumber string         `json:"routing_number"`
		Currency      string         `json:"currency"`
		Meta          map[string]any `json:"meta"`
	} `json:"account"`
	Transactions []struct {
		Number            string         `json:"number"`
		Date              string         `json:"date"`
		Amount            string         `json:"amount"`
		IsOutcome         bool           `json:"is_outcome"`
		Purpose           string         `json:"purpose"`
		Meta              map[string]any `json:"meta"`
		ContractorAccount *struct {
			Name          string `json:"name"`
			Number        string `json:"number"`
			RoutingNumber string `json:"routing_number"`
			TIN           string `json:"tin"`
		} `json:"contractor_account"`
	} `json:"transactions"`
}

const geminiParserPrompt = `You are a parser for bank statement export files in the 1C ClientBankExchange text format (sections delimited by key=value lines, "СекцияРасчСчет" account header, "СекцияДокумент" transaction documents).

Task:
- Parse the attached statement text completely.
- Output STRICT JSON only (no comments, no trailing commas, no extra text, no Markdown fences).
- Output a single JSON object with this shape:

{
  "account": {
    "number": string,
    "routing_number": string,
    "currency": string,
    "meta": object with any remaining header fields (bank name, statement period, opening/closing balance)
  },
  "transactions": [
    {
      "number": string (document number),
      "date": string "YYYY-MM-DD",
      "amount": string (decimal, always positive, e.g. "1234.56"),
      "is_outcome": boolean (true when money leaves the statement's account),
      "purpose": string (payment purpose text),
      "meta": object with any remaining document fields,
      "contractor_account": {
        "name": string, "number": string, "routing_number": string, "tin": string
      } or null when the document carries no counterparty
    }
  ]
}

Rules:
- Keep transactions in file order.
- "amount" must be the exact decimal string from the file, never rounded.
- If the text is not a valid ClientBankExchange file, output instead:
  {"error": {"section": string, "line": number, "message": string}}
  naming the first offending section/line.
- Output must begin with "{" and end with "}".`

// Parse implements Parser.
func (p *GeminiParser) Parse(ctx context.Context, text string) (*Statement, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: geminiParserPrompt},
				{Text: text},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiParser.Parse: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiParser.Parse: empty response from model")
	}

	var payload geminiPayload
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &payload); err != nil {
		return nil, fmt.Errorf("GeminiParser.Parse: unmarshal JSON: %w", err)
	}

	return payloadToStatement(&payload)
}

func payloadToStatement(payload *geminiPayload) (*Statement, error) {
	if payload.Error != nil {
		return nil, &ParseError{
			Section: payload.Error.Section,
			Line:    payload.Error.Line,
			Message: payload.Error.Message,
		}
	}
	if payload.Account == nil || payload.Account.Number == "" {
		return nil, &ParseError{Section: "СекцияРасчСчет", Message: "missing account number in statement header"}
	}

	st := &Statement{
		Account: Account{
			Number:        payload.Account.Number,
			RoutingNumber: payload.Account.RoutingNumber,
			CurrencyCode:  payload.Account.Currency,
			Meta:          payload.Account.Meta,
		},
	}

	for i, tx := range payload.Transactions {
		date, err := time.Parse(statementDateFormat, tx.Date)
		if err != nil {
			return nil, &ParseError{
				Section: "СекцияДокумент",
				Line:    i + 1,
				Message: fmt.Sprintf("invalid date %q", tx.Date),
			}
		}
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			return nil, &ParseError{
				Section: "СекцияДокумент",
				Line:    i + 1,
				Message: fmt.Sprintf("invalid amount %q", tx.Amount),
			}
		}

		out := Transaction{
			Number:    tx.Number,
			Date:      date,
			Amount:    amount,
			IsOutcome: tx.IsOutcome,
			Purpose:   tx.Purpose,
			Meta:      tx.Meta,
		}
		if tx.ContractorAccount != nil {
			out.ContractorAccount = &ContractorAccount{
				Name:          tx.ContractorAccount.Name,
				Number:        tx.ContractorAccount.Number,
				RoutingNumber: tx.ContractorAccount.RoutingNumber,
				TIN:           tx.ContractorAccount.TIN,
			}
		}
		st.Transactions = append(st.Transactions, out)
	}

	return st, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
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

	// Extra safety: keep only from the first '{' to the last '}' if the
	// model wrapped the object in prose.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
