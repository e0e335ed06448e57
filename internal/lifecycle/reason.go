package lifecycle

import "strings"

// reasonCodes はモデレーション理由コードと表示ラベル。照合順序を固定するためスライスで持つ。
var reasonCodes = []struct {
	code  string
	label string
}{
	{"inappropriate", "Inappropriate Content"},
	{"discriminatory", "Discriminatory Language"},
	{"scam", "Scamming Pattern"},
	{"fake_info", "Fake Information"},
	{"privacy", "Privacy Violation"},
	{"spam", "Spam Content"},
	{"illegal", "Illegal Content"},
	{"other", "Other Violation"},
}

// ReasonLabel はモデレーション理由の表示ラベルを返す。
// 既知コードの完全一致、コードで始まる文、単語としてコードを含む文の順で照合し、
// どれにも当たらない場合はアンダースコア区切りをTitle Caseに整形して返す。
func ReasonLabel(reason string) string {
	lower := strings.ToLower(strings.TrimSpace(reason))
	if lower == "" {
		return "N/A"
	}
	for _, rc := range reasonCodes {
		if lower == rc.code {
			return rc.label
		}
	}
	for _, rc := range reasonCodes {
		if strings.HasPrefix(lower, rc.code+" ") || strings.Contains(lower, " "+rc.code) {
			return rc.label
		}
	}

	words := strings.Split(strings.TrimSpace(reason), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
