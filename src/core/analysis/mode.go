package analysis

// Mode 分析模式
type Mode string

const (
	ModeTranslate Mode = "translate" // 文字翻译
	ModeCalorie   Mode = "calorie"   // 食物卡路里估算
	ModeNavigate  Mode = "navigate"  // 障碍物/导航评估
)

// AllModes 返回全部受支持的分析模式
func AllModes() []Mode {
	return []Mode{ModeTranslate, ModeCalorie, ModeNavigate}
}

// ParseMode 解析模式字符串
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeTranslate, ModeCalorie, ModeNavigate:
		return Mode(s), true
	}
	return "", false
}

// Valid 检查模式是否受支持
func (m Mode) Valid() bool {
	_, ok := ParseMode(string(m))
	return ok
}

func (m Mode) String() string {
	return string(m)
}
