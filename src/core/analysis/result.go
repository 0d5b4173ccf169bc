package analysis

// TranslationResult 翻译模式的标准结果结构
type TranslationResult struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// FoodItem 单个食物项
type FoodItem struct {
	Name       string  `json:"name"`
	Calories   float64 `json:"calories"`
	Confidence float64 `json:"confidence"`
}

// CalorieResult 卡路里模式的标准结果结构
type CalorieResult struct {
	TotalCalories   float64    `json:"total_calories"`
	FoodItems       []FoodItem `json:"food_items"`
	ConfidenceScore float64    `json:"confidence_score"`
}

// Position 障碍物在画面中的位置
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Obstacle 单个障碍物
type Obstacle struct {
	Type     string   `json:"type"`
	Distance float64  `json:"distance"`
	Position Position `json:"position"`
}

// SafePath 建议的安全路径
type SafePath struct {
	Direction  string  `json:"direction"`
	Angle      float64 `json:"angle"`
	Confidence float64 `json:"confidence"`
}

// NavigationResult 导航模式的标准结果结构
type NavigationResult struct {
	Obstacles    []Obstacle `json:"obstacles"`
	SafePath     SafePath   `json:"safe_path"`
	Distance     float64    `json:"distance"`
	WarningLevel string     `json:"warning_level"`
}

// Result 标准化结果及其整体置信度
// Data为三种模式结构之一
type Result struct {
	Mode       Mode        `json:"-"`
	Data       interface{} `json:"result"`
	Confidence float64     `json:"confidence"`
}
