// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package web

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
)

const baseCSS = `
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; } h2 { font-size: 1.1rem; }
a { color: #0b5fff; text-decoration: none; } a:hover { text-decoration: underline; }
ul.tools { list-style: none; padding: 0; }
ul.tools li { padding: 0.6rem 0; border-bottom: 1px solid #eee; }
.desc { color: #555; font-size: 0.9rem; }
form label { display: block; margin-top: 0.8rem; font-weight: 600; }
form input[type=text], form input[type=number] { width: 100%; padding: 0.4rem; box-sizing: border-box; }
form button { margin-top: 1rem; padding: 0.5rem 1.2rem; }
.required { color: #c00; }
.error { background: #fde8e8; border: 1px solid #f5b5b5; padding: 0.8rem; margin-top: 1rem; border-radius: 4px; }
.error code { font-weight: 600; }
pre.result { background: #f6f8fa; padding: 0.8rem; overflow-x: auto; border-radius: 4px; }
.meta { color: #888; font-size: 0.8rem; margin-top: 2rem; }
`

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title><style>` + baseCSS + `</style></head>
<body>
<h1>{{.Title}}</h1>
{{if .Tools}}
<ul class="tools">
{{range .Tools}}
  <li><a href="/tools/{{.Name}}">{{.Name}}</a>
  <div class="desc">{{.Description}}</div></li>
{{end}}
</ul>
{{else}}
<p>No tools available. The catalog may be empty or discovery may have failed; check the logs.</p>
{{end}}
<p class="meta">{{.ToolCount}} tools &middot; <a href="/healthz">health</a> &middot; MCP endpoint at <code>/mcp/sse</code></p>
</body></html>`))

var toolTemplate = template.Must(template.New("tool").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Schema.Name}}</title><style>` + baseCSS + `</style></head>
<body>
<p><a href="/">&larr; all tools</a></p>
<h1>{{.Schema.Name}}</h1>
<div class="desc">{{.Description}}</div>
<form method="post" action="/tools/{{.Schema.Name}}">
{{range .Schema.Parameters}}
  <label for="{{.Name}}">{{.Name}}{{if .Required}} <span class="required">*</span>{{end}}</label>
  {{if eq .Type "boolean"}}
    <input type="checkbox" id="{{.Name}}" name="{{.Name}}" value="1">
  {{else if or (eq .Type "number") (eq .Type "integer")}}
    <input type="number" id="{{.Name}}" name="{{.Name}}" step="any" placeholder="{{.Description}}">
  {{else}}
    <input type="text" id="{{.Name}}" name="{{.Name}}" placeholder="{{.Description}}">
  {{end}}
{{end}}
  <button type="submit">Run</button>
</form>
{{if .Error}}
<div class="error"><code>{{.Error.Code}}</code> {{.Error.Message}}{{if .Error.RemoteCode}} (remote code {{.Error.RemoteCode}}){{end}}</div>
{{end}}
{{if .HasResult}}
<h2>Result</h2>
<pre class="result">{{.Result}}</pre>
{{end}}
</body></html>`))

// renderMarkdown converts a tool description to HTML. Catalog authors
// write descriptions in markdown; failures fall back to escaped text.
func renderMarkdown(source string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}
