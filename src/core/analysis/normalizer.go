package analysis

import (
	"encoding/json"
	"strconv"
)

// 解析失败时的整体置信度；解析成功时沿用模型侧的默认置信度
const (
	fallbackConfidence = 0.5
	parsedConfidence   = 0.9
)

// Normalize 将模型的自由文本回复映射为指定模式的标准结果
// 永不失败：JSON缺失或损坏时退化为该模式的默认结构
func Normalize(rawText string, mode Mode) Result {
	parsed, ok := parseObject(rawText)
	if !ok {
		return defaultResult(rawText, mode)
	}

	switch mode {
	case ModeTranslate:
		return Result{
			Mode: mode,
			Data: TranslationResult{
				OriginalText:   asString(parsed["original_text"], ""),
				TranslatedText: asString(parsed["translated_text"], rawText),
				SourceLanguage: asString(parsed["source_language"], "auto"),
				TargetLanguage: "zh",
			},
			Confidence: parsedConfidence,
		}

	case ModeCalorie:
		score := asFloat(parsed["confidence"], parsedConfidence)
		return Result{
			Mode: mode,
			Data: CalorieResult{
				TotalCalories:   asFloat(parsed["total_calories"], 0),
				FoodItems:       asFoodItems(parsed["food_items"]),
				ConfidenceScore: score,
			},
			Confidence: score,
		}

	case ModeNavigate:
		return Result{
			Mode: mode,
			Data: NavigationResult{
				Obstacles:    asObstacles(parsed["obstacles"]),
				SafePath:     asSafePath(parsed["safe_path"], 1.0),
				Distance:     asFloat(parsed["distance"], 0),
				WarningLevel: asWarningLevel(parsed["warning_level"]),
			},
			Confidence: parsedConfidence,
		}
	}

	return defaultResult(rawText, mode)
}

// defaultResult 指定模式的默认结果结构
func defaultResult(rawText string, mode Mode) Result {
	switch mode {
	case ModeTranslate:
		return Result{
			Mode: mode,
			Data: TranslationResult{
				OriginalText:   "",
				TranslatedText: rawText,
				SourceLanguage: "auto",
				TargetLanguage: "zh",
			},
			Confidence: fallbackConfidence,
		}
	case ModeCalorie:
		return Result{
			Mode: mode,
			Data: CalorieResult{
				TotalCalories:   0,
				FoodItems:       []FoodItem{},
				ConfidenceScore: fallbackConfidence,
			},
			Confidence: fallbackConfidence,
		}
	default:
		return Result{
			Mode: mode,
			Data: NavigationResult{
				Obstacles: []Obstacle{},
				SafePath: SafePath{
					Direction:  "forward",
					Angle:      0,
					Confidence: fallbackConfidence,
				},
				Distance:     0,
				WarningLevel: "safe",
			},
			Confidence: fallbackConfidence,
		}
	}
}

// parseObject 提取并解析回复中的JSON对象
func parseObject(rawText string) (map[string]interface{}, bool) {
	jsonStr, ok := ExtractJSONObject(rawText)
	if !ok {
		return nil, false
	}

	parsed := map[string]interface{}{}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// asString 字符串字段，缺失或类型不符时取默认值
func asString(v interface{}, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// asFloat 数值字段：非数值字符串尝试转换，不可转换视为缺省
func asFloat(v interface{}, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// asWarningLevel 限定为文档化的三个等级，非法值回落到safe
func asWarningLevel(v interface{}) string {
	switch asString(v, "safe") {
	case "caution":
		return "caution"
	case "danger":
		return "danger"
	default:
		return "safe"
	}
}

// asFoodItems 食物项列表；模型有时返回food_name而不是name
func asFoodItems(v interface{}) []FoodItem {
	raw, ok := v.([]interface{})
	if !ok {
		return []FoodItem{}
	}

	items := make([]FoodItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name := asString(m["name"], "")
		if name == "" {
			name = asString(m["food_name"], "")
		}
		items = append(items, FoodItem{
			Name:       name,
			Calories:   asFloat(m["calories"], 0),
			Confidence: asFloat(m["confidence"], 0),
		})
	}
	return items
}

// asObstacles 障碍物列表
func asObstacles(v interface{}) []Obstacle {
	raw, ok := v.([]interface{})
	if !ok {
		return []Obstacle{}
	}

	obstacles := make([]Obstacle, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		obstacle := Obstacle{
			Type:     asString(m["type"], ""),
			Distance: asFloat(m["distance"], 0),
		}
		if pos, ok := m["position"].(map[string]interface{}); ok {
			obstacle.Position = Position{
				X: asFloat(pos["x"], 0),
				Y: asFloat(pos["y"], 0),
			}
		}
		obstacles = append(obstacles, obstacle)
	}
	return obstacles
}

// asSafePath 安全路径，键缺失时使用默认路径
func asSafePath(v interface{}, defConfidence float64) SafePath {
	path := SafePath{
		Direction:  "forward",
		Angle:      0,
		Confidence: defConfidence,
	}

	m, ok := v.(map[string]interface{})
	if !ok {
		return path
	}

	path.Direction = asString(m["direction"], "forward")
	path.Angle = asFloat(m["angle"], 0)
	path.Confidence = asFloat(m["confidence"], defConfidence)
	return path
}
