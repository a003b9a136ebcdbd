// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generator

import (
	"fmt"
	"html"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
)

// Fallback returns the deterministic artifact used when generation fails.
// The page is a valid standalone document that renders an explanatory
// message, so downstream publish and hosting steps still work.
func Fallback(cause error, brief string) *datatypes.Artifact {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}

	page := fmt.Sprintf(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>Generated Project (Error)</title>
</head>
<body>
  <!-- Generation failed; falling back to minimal placeholder page. -->
  <!-- Error: %s -->
  <main>
    <h1>Auto-generation failed</h1>
    <p>The automated generation service returned an error. Please try again.</p>
  </main>
</body>
</html>
`, html.EscapeString(msg))

	return datatypes.NewArtifact(
		datatypes.ArtifactFile{Path: datatypes.PrimaryFile, Content: page},
		datatypes.ArtifactFile{Path: "README.md", Content: readme(brief)},
		datatypes.ArtifactFile{Path: "LICENSE", Content: mitLicense},
	)
}

const mitLicense = `MIT License

Copyright (c) 2025 Forgeline AI

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated documentation files (the "Software"), to deal in the Software without restriction, including without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
`
