package analysis

import "strings"

// ExtractJSONObject 从自由文本中提取第一个配平的JSON对象
// 模型回复常在JSON前后夹带说明文字甚至带花括号的无关内容，
// 因此用括号配平扫描（跳过字符串字面量与转义）而不是贪婪正则
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// 括号不配平
	return "", false
}
