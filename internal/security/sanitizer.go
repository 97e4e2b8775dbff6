// Package security は入力の無害化と、認証・レート制限に関する監査ログを提供する。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	dangerousProtocol = regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`)
	// data: はMIMEタイプか ; , が続くURI形式のときだけ除去し、"data: chairs" のような文章は残す。
	dataURIScheme = regexp.MustCompile(`(?i)data\s*:(\s*(?:[a-z0-9.+-]+/[a-z0-9.+-]+|[;,]))`)
	inlineHandler     = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	angleBrackets     = strings.NewReplacer("<", "", ">", "")
)

// InputSanitizer は保存前の自由入力を無害化する。
type InputSanitizer interface {
	SanitizeInput(s string) string
	SanitizeRichText(s string) string
}

// Sanitizer はbluemondayのポリシーを保持する。ポリシーは並行利用できる。
type Sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//   - strict: 全タグを除去（script, styleは中身ごと）
//   - rich: p, br, ul, ol, li, strong, em と a[href] のみ許可
func NewSanitizer() *Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowStandardURLs()
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// SanitizeInput はタグ、山括弧、javascript:/vbscript:/data: プロトコル、
// on*= 形式のインラインハンドラを取り除き、前後の空白を削る。
// 除去で新たなパターンが現れないよう、変化がなくなるまで繰り返す。
// 変化するパスはほぼ必ず文字列を短くするため、入力長+2回で収束しなければ空文字列を返す。
func (s *Sanitizer) SanitizeInput(in string) string {
	out := in
	for pass := 0; ; pass++ {
		if pass > len(in)+2 {
			return ""
		}
		next := s.strict.Sanitize(out)
		next = html.UnescapeString(next)
		next = angleBrackets.Replace(next)
		next = dangerousProtocol.ReplaceAllString(next, "")
		next = dataURIScheme.ReplaceAllString(next, "$1")
		next = inlineHandler.ReplaceAllString(next, "")
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}

// SanitizeRichText はイベント説明文向けに許可リストのHTMLのみを残す。
func (s *Sanitizer) SanitizeRichText(in string) string {
	return strings.TrimSpace(s.rich.Sanitize(in))
}

var _ InputSanitizer = (*Sanitizer)(nil)
