// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
)

// buildPrompt selects the create-from-scratch or modify-existing prompt
// depending on whether prior code is available.
func buildPrompt(req Request) string {
	attachments := renderAttachments(req.Attachments)

	brief := req.Brief
	if req.Feedback != "" {
		brief = brief + "\n\nREVIEWER FEEDBACK ON THE PREVIOUS ATTEMPT:\n" + req.Feedback
	}

	if req.PriorPrimary != "" {
		return fmt.Sprintf(`You are an expert web developer who modifies and improves single-file web apps.
A user provided ORIGINAL CODE for index.html and a NEW BRIEF. Modify the ORIGINAL CODE
to implement the NEW BRIEF while preserving ALL existing functionality unless the brief
explicitly says to remove or replace it. Fix bugs, improve accessibility, and make the
file production-ready (HTML/CSS/JS in one file).

--- ORIGINAL CODE (index.html) START ---
%s
--- ORIGINAL CODE (index.html) END ---

BRIEF:
%s

ATTACHMENTS:
%s

INSTRUCTIONS:
- Return ONLY the raw contents of the updated index.html file. Do NOT include any
  surrounding explanation, Markdown, or code fences.
- The returned HTML must be a valid, standalone single-file web page.
- Keep backward compatibility and do not remove previously working features.
`, req.PriorPrimary, brief, attachments)
	}

	return fmt.Sprintf(`You are an expert web developer creating single-file applications.
Based on the brief and attachments, create a complete index.html file.
The code must be production-ready and contain all HTML, CSS, and JavaScript.

BRIEF:
%s

ATTACHMENTS:
%s

INSTRUCTIONS:
- Return ONLY the raw contents of the index.html file. Do NOT include explanations,
  notes, or Markdown formatting.
- The HTML must be a valid, standalone file (doctype, charset meta, responsive
  viewport, and any inline CSS/JS required).
`, brief, attachments)
}

// textLikeTokens identify MIME types we are willing to inline as text.
var textLikeTokens = []string{"text", "json", "csv", "xml", "javascript", "html"}

// renderAttachments turns data-URI attachments into prompt text. Text-like
// base64 payloads are decoded and inlined; binary or unparseable blobs are
// described instead of inlined.
func renderAttachments(attachments []datatypes.Attachment) string {
	if len(attachments) == 0 {
		return "No attachments provided."
	}

	var parts []string
	for _, att := range attachments {
		name := att.Name
		if name == "" {
			name = "unnamed"
		}

		header, encoded, ok := strings.Cut(att.URL, ",")
		if !ok {
			parts = append(parts, fmt.Sprintf(
				"File name: %s\nFile content:\n[Attachment present but could not be parsed (%s).]", name, name))
			continue
		}

		headerLower := strings.ToLower(header)
		isText := false
		for _, tok := range textLikeTokens {
			if strings.Contains(headerLower, tok) {
				isText = true
				break
			}
		}

		if !isText || !strings.Contains(headerLower, "base64") {
			parts = append(parts, fmt.Sprintf(
				"File name: %s\nFile content:\n[Content of binary or non-text file (%s) is attached but not displayed here.]", name, name))
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			parts = append(parts, fmt.Sprintf(
				"File name: %s\nFile content:\n[Attachment could not be decoded as text (%s).]", name, name))
			continue
		}

		parts = append(parts, fmt.Sprintf(
			"File name: %s\nFile content:\n```\n%s\n```", name, string(decoded)))
	}

	return strings.Join(parts, "\n\n")
}
