package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は外部から受け取ったテキストからマークアップを除去する。
// サニタイズログの理由・対象フィールド・使用データなど、管理画面に表示される
// 信頼できない文字列の保存前に使用する。
type TextSanitizerService interface {
	// Sanitize は全てのタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// TextSanitizer はbluemondayのStrictPolicyによるTextSanitizerServiceの実装。
// ポリシーはスレッドセーフに共有できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses はエスケープされたタグを展開しながら除去する最大回数。
const maxSanitizePasses = 4

// Sanitize はタグを除去する。StrictPolicyがエスケープした実体参照は元の文字に戻し、
// 戻した結果にタグが現れた場合は再度除去する。
func (s *TextSanitizer) Sanitize(raw string) string {
	text := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

var _ TextSanitizerService = (*TextSanitizer)(nil)
