package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	classifySnippetLimit = 3000
	enrichSnippetLimit   = 4000
)

func classifyPrompt(title, text string) string {
	return fmt.Sprintf(`Analyze the eligible and excluded geographic locations for the following funding opportunity.

Tasks:
1. Identify all specific countries, regions (e.g., "East Africa", "Sub-Saharan Africa", "MENA"), and global designators ("Global", "International", "Developing Countries") that are ELIGIBLE.
2. Identify any specific countries or regions that are EXPLICITLY EXCLUDED.

Your response MUST be a valid JSON object with two keys: "eligible" and "excluded". Each key should contain a list of strings. If no locations are found for a key, provide an empty list. Do not add any text outside the JSON object.

Example for a grant open to East Africa but not Somalia:
{
  "eligible": ["East Africa"],
  "excluded": ["Somalia"]
}

Opportunity Title: %s
Opportunity Content: %s`, title, snippet(text, classifySnippetLimit))
}

func enrichPrompt(title, text string, focusAreas []string) string {
	return fmt.Sprintf(`You are a data analyst. For the following funding opportunity, perform these tasks:
1. Focus Areas: From this list ONLY: %s, select the 2-3 MOST RELEVANT focus areas that best match the opportunity's primary objectives. Do not select more than 3 areas.
2. Funding Amount: Extract the specific funding amount or range (e.g., "$10,000", "up to EUR 50,000"). If not clearly specified, state "Not Specified".
3. Funder: Identify the primary organization providing the funds. If not clearly specified, state "Not Specified".
4. Deadline: Scrutinize the text for any mention of an application closing date.
   - If you find a specific date, extract it and format it STRICTLY as YYYY-MM-DD. Ignore times of day.
   - If the text explicitly states the deadline is "rolling", "ongoing", or reviewed "quarterly", your response for the deadline MUST be the string "Rolling".
   - If and ONLY IF no date or rolling deadline is mentioned anywhere, your response MUST be the string "Not Specified".
5. Summary: Write a clean, one-paragraph summary for an NGO audience.

YOUR RESPONSE MUST BE A VALID JSON OBJECT and nothing else. Do not include markdown fences.

The JSON object must have these five keys: "focus_areas" (a list of strings), "funding_amount" (a string), "funder" (a string), "deadline" (a string), and "summary" (a string).

Opportunity Title: %s
Opportunity Content: %s`, strings.Join(focusAreas, ", "), title, snippet(text, enrichSnippetLimit))
}

func snippet(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	// Back off to a rune boundary so the cut never splits a character.
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
