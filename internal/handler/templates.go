package handler

import "html/template"

// resultRow は結果ページの詳細テーブルの1行。
type resultRow struct {
	Label string
	Value string
}

// resultPageData は検証結果ページのテンプレートデータ。
type resultPageData struct {
	Title   string
	Heading string
	Message string
	Rows    []resultRow
	Action  string
}

// resultPageTemplate は検証結果ページ（成功・保有なし・競合・失効・失敗）の共通テンプレート。
// html/templateの自動エスケープに加え、表示名はハンドラー側でサニタイズ済み。
var resultPageTemplate = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 32rem; margin: 4rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; margin-top: 1rem; }
td { padding: 0.25rem 1rem 0.25rem 0; vertical-align: top; }
td.label { color: #666; white-space: nowrap; }
p.action { color: #666; margin-top: 1.5rem; }
</style>
</head>
<body>
<h1>{{.Heading}}</h1>
<p>{{.Message}}</p>
{{if .Rows}}<table>
{{range .Rows}}<tr><td class="label">{{.Label}}</td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
{{if .Action}}<p class="action">{{.Action}}</p>{{end}}
</body>
</html>
`))
