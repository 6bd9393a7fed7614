// Package prompts contains the system and user prompts sent to the
// generation backend for article classification and summarization.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seenimoa/finnews/internal/tickers"
)

// TickerSampleSize bounds how many universe entries are embedded in the
// classification prompt.
const TickerSampleSize = 50

// Sampling temperatures for the two calls made per article.
const (
	ClassificationTemperature = 0.2
	SummaryTemperature        = 0.3
)

// ── Classification ──

const classificationTemplate = `You are a professional financial analyst specializing in Indonesian financial news. Perform the following two tasks based on the article content:

1. SENTIMENT ANALYSIS:
- Classify the sentiment as "positive", "neutral", or "negative"
- Provide a confidence score as a float between 0.0 and 1.0

2. TICKER EXTRACTION:
- Identify up to 5 Indonesian stock tickers (IDX-listed) that are either explicitly mentioned or strongly implied based on the headline or content
- Only include official ticker symbols listed on the Indonesia Stock Exchange (IDX)
- If you see a ticker format at the beginning of the headline (like "XXXX: ..."), prioritize this ticker
- Below is a partial list of valid IDX ticker symbols with their company names:
  %s
- Provide a brief explanation (in Bahasa Indonesia) for why each ticker is relevant to the article
- DO NOT hallucinate or make up ticker symbols that are not in the IDX listing

Output format:
Return only a JSON object with the following structure:
{
"sentiment": "positive" | "neutral" | "negative",
"confidence": 0.0-1.0,
"tickers": ["BBCA", "TLKM"],
"reasoning": "BBCA disebutkan secara eksplisit terkait kinerja keuangan kuartalan, sementara TLKM relevan karena kerjasama strategis dalam proyek digitalisasi."
}

- Do not invent tickers that are not valid in the IDX or not in the provided reference.
- If there are no relevant tickers, return an empty array: "tickers": [], and explain accordingly in the reasoning.
- Ensure all text in "reasoning" is written in Bahasa Indonesia.
%s`

// ClassificationSystemPrompt builds the sentiment and ticker extraction
// prompt around a sample of the ticker universe.
func ClassificationSystemPrompt(sample []tickers.Entry) string {
	return fmt.Sprintf(classificationTemplate, TickerSampleJSON(sample), IDXMarketContext)
}

// ClassificationUserPrompt carries the (truncated) article. hint and company
// are empty when the headline names no listed ticker.
func ClassificationUserPrompt(headline, content, hint, company string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Judul Berita: %s\n\nIsi Berita: %s", headline, content)
	if hint != "" {
		fmt.Fprintf(&b, "\n\nCatatan: Ticker %s (%s) terdeteksi dalam judul berita dan kemungkinan besar relevan.", hint, company)
	}
	b.WriteString("\n\nAnalisis sentimen dan ekstraksi ticker saham artikel berita keuangan ini dalam format JSON.")
	return b.String()
}

// TickerSampleJSON renders entries as one JSON object in the given order.
func TickerSampleJSON(entries []tickers.Entry) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(", ")
		}
		k, _ := json.Marshal(e.Symbol)
		v, _ := json.Marshal(e.Company)
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.String()
}

// ── Summarization ──

// SummarySystemPrompt asks for a short Indonesian summary with no visible
// reasoning.
const SummarySystemPrompt = `You are a financial news editor who specializes in creating concise, informative summaries.
Your task is to summarize the given financial news article in 1-3 sentences, focusing on:

1. The key financial or market implications
2. Specific impacts on companies, sectors, or the broader economy
3. Any numerical data points that are significant (revenue, growth, market size, etc.)
4. Potential future implications for investors

CRITICAL FORMATTING REQUIREMENTS:
- Write ONLY 1-3 complete sentences in Bahasa Indonesia
- Do NOT include ANY thinking, reasoning or meta-commentary
- Do NOT use <think> tags or ANY other tags
- Do NOT include phrases like "Berikut ringkasannya:" or any other introduction
- NEVER explain your process or reasoning
- Start your response immediately with the first sentence of the summary

Your summary should be factual, concise, and focused on the financial aspects.
Do not include personal opinions or recommendations to buy/sell securities.

Example of the EXACT format required:
"Bank Central Asia membukukan laba bersih Rp12,9 triliun pada kuartal pertama, naik 11,7% secara tahunan, didorong oleh pertumbuhan kredit yang kuat. Rasio kredit bermasalah tetap terjaga di level 2,1%."`

// SummaryUserPrompt carries the full, untruncated article.
func SummaryUserPrompt(headline, content string) string {
	return fmt.Sprintf(`Headline: %s

Content: %s

Create a 1-3 sentence financial summary of this article in Bahasa Indonesia.
ONLY include the final summary without ANY commentary or <think> tags.`, headline, content)
}
